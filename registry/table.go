package registry

// builtinModules is the import table shipped with the generator. Entries are
// immutable; extra modules are added with Registry.Register or LoadFile.
var builtinModules = []ImportInfo{
	// Reimplemented in the Zig runtime.
	{Module: "math", Strategy: Native, Import: "runtime.math"},
	{Module: "time", Strategy: Native, Import: "runtime.time"},
	{Module: "asyncio", Strategy: Native, Import: "runtime.asyncio"},
	{Module: "json", Strategy: Native, Import: "runtime.json"},
	{Module: "os", Strategy: Native, Import: "runtime.os"},
	{Module: "os.path", Strategy: Native, Import: "runtime.os.path"},
	{Module: "sys", Strategy: Native, Import: "runtime.sys", NeedsInit: true},
	{Module: "random", Strategy: Native, Import: "runtime.random", NeedsInit: true},
	{Module: "re", Strategy: Native, Import: "runtime.re"},
	{Module: "collections", Strategy: Native, Import: "runtime.collections"},
	{Module: "string", Strategy: Native, Import: "runtime.string"},
	{Module: "pickle", Strategy: Native, Import: "runtime.pickle"},
	{Module: "importlib", Strategy: Native, Import: "runtime.importlib"},
	{Module: "functools", Strategy: Native, Import: "runtime.functools", Functions: map[string]FuncMeta{
		"reduce": {NeedsAllocator: false, ReturnsError: true},
	}},
	{Module: "hashlib", Strategy: Native, Import: "runtime.hashlib", Functions: map[string]FuncMeta{
		"md5":    {NeedsAllocator: true, ReturnsError: true},
		"sha1":   {NeedsAllocator: true, ReturnsError: true},
		"sha256": {NeedsAllocator: true, ReturnsError: true},
	}},
	{Module: "base64", Strategy: Native, Import: "runtime.base64", Functions: map[string]FuncMeta{
		"b64encode": {NeedsAllocator: true, ReturnsError: true},
		"b64decode": {NeedsAllocator: true, ReturnsError: true},
	}},
	{Module: "bisect", Strategy: Native, Import: "runtime.bisect", Functions: map[string]FuncMeta{
		"bisect_left":  {},
		"bisect_right": {},
		"insort":       {ReturnsError: true},
	}},
	{Module: "statistics", Strategy: Native, Import: "runtime.statistics", Functions: map[string]FuncMeta{
		"mean":   {},
		"median": {NeedsAllocator: true, ReturnsError: true},
		"stdev":  {},
	}},

	// Wrappers around C libraries.
	{Module: "numpy", Strategy: Foreign, Import: `@import("c_interop/numpy.zig")`, Link: "openblas", NeedsInit: true, Functions: map[string]FuncMeta{
		"array": {NeedsAllocator: true, ReturnsError: true},
		"zeros": {NeedsAllocator: true, ReturnsError: true},
		"ones":  {NeedsAllocator: true, ReturnsError: true},
		"dot":   {ReturnsError: true},
		"sum":   {},
		"mean":  {},
	}},
	{Module: "sqlite3", Strategy: Foreign, Import: `@import("c_interop/sqlite3.zig")`, Link: "sqlite3", Functions: map[string]FuncMeta{
		"connect": {NeedsAllocator: true, ReturnsError: true},
	}},
	{Module: "zlib", Strategy: Foreign, Import: `@import("c_interop/zlib.zig")`, Link: "z", Functions: map[string]FuncMeta{
		"compress":   {NeedsAllocator: true, ReturnsError: true},
		"decompress": {NeedsAllocator: true, ReturnsError: true},
		"crc32":      {},
	}},

	// Compiled from Python source.
	{Module: "pathlib", Strategy: Source, Import: `@import("pathlib.zig")`},
	{Module: "dataclasses", Strategy: Source, Import: `@import("dataclasses.zig")`},

	// Recognized but not provided.
	{Module: "tkinter", Strategy: Unsupported},
	{Module: "multiprocessing", Strategy: Unsupported},
	{Module: "ctypes", Strategy: Unsupported},
}
