// Package domain models registration presets: named, ordered collections of
// elastix parameter-file contents.
//
// A ParameterSet owns its sections exclusively. Section order is the order in
// which the registration engine applies the transforms and is never changed
// implicitly. Whether a preset may be edited or deleted is fixed at
// construction by its Kind, which carries a Capabilities value.
package domain
