// Package plugin defines the extension-point contract between a host
// inference runtime and the operations it loads: the DynamicPlugin and
// Creator interfaces, the attribute schema types, the call-order state
// machine and the process-wide creator registry.
//
// The host drives a plugin through a fixed sequence:
//
//	Registry.Lookup -> Creator.CreatePlugin | Creator.DeserializePlugin
//	  -> SupportsFormatCombination* / OutputDimensions / OutputDataType   (Negotiating)
//	  -> ConfigurePlugin                                                   (Configured)
//	  -> Initialize                                                        (Executable)
//	  -> (WorkspaceSize, Enqueue)*
//	  -> Terminate -> Destroy                                              (Destroyed)
//
// Callbacks report failure through their error return. Callbacks that have
// no error return (OutputDimensions) panic on contract violations; hosts are
// expected to call them inside exceptions.TryCatch so that no panic escapes
// the boundary.
package plugin
