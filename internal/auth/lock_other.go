//go:build !unix

package auth

func lockMemory([]byte) error   { return nil }
func unlockMemory([]byte) error { return nil }
