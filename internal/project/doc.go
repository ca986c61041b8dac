// Package project discovers and serves image processing project manifests.
//
// A project is a directory containing a project.json manifest that names the
// worker scripts it ships and the parameters its pipeline stages accept. The
// registry scans one or more project roots, tolerates individually broken
// directories, and hands out defensive copies so callers can never mutate the
// loaded state. Reloading swaps the whole manifest set atomically.
package project
