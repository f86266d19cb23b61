// Package enginetest provides engine doubles for tests.
//
// Library is an in-process fake that records every call. Module builds a
// real wasm engine binary with the same entry points for exercising the
// wazero backend end to end.
package enginetest
