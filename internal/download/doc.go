// Package download retrieves a resolved download link into the destination
// directory. A direct HTTP transfer is tried first; when it fails the
// browser is asked to download the link itself and the directory is polled
// until the file lands.
package download
