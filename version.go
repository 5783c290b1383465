package arbor

// Version is the library and CLI release version.
const Version = "0.1.0"
