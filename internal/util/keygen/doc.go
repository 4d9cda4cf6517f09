// Package keygen generates RSA key pairs for SSH authentication.
//
// Keys are produced in PEM format (private) and OpenSSH authorized_keys
// format (public). The init command uses it to create a dedicated
// deployment key whose public half is installed on imaged nodes.
package keygen
