// Package vfs defines the filesystem collaborator used by the system-call
// layer: a flat namespace of fixed-size files that can be created, removed
// and opened, and open files with a private position.
//
// Files may have writes denied while they back a running executable. A
// denied file accepts reads and seeks but every write reports zero bytes.
//
// # Usage
//
//	fs := memfs.New()
//	if err := fs.Create("notes.txt", 64); err != nil {
//		log.Fatal(err)
//	}
//	f, err := fs.Open("notes.txt")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer f.Close()
package vfs
