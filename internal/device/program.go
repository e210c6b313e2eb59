package device

// Program is a Kernel that also carries a WGSL compute implementation.
// GPU streams run the shader; other streams fall back to Kernel.Run.
//
// Bindings are storage buffers bound at @group(0) @binding(i) in order; the
// uniform block follows them at the next binding index.
type Program interface {
	Kernel
	// Shader returns a cache key and the WGSL source. The entry point is "main".
	Shader() (name, code string)
	// Bindings returns the storage buffers in binding order.
	Bindings() []*Buffer
	// Writable returns the indices of Bindings the shader writes; those are
	// copied back to host memory after dispatch.
	Writable() []int
	// Uniform returns the parameter block, padded by the stream to 16 bytes.
	Uniform() []byte
	// Workgroups returns the X dispatch size.
	Workgroups() uint32
}
