// Package cryptoutil holds the integrity checks used when loading a meeting
// list from S3: SHA-256 hashing, constant-time hash comparison and detached
// signature verification against an AWS KMS asymmetric public key
// (ECDSA P-256/P-384, RSA-PSS with optional PKCS1v15 fallback).
package cryptoutil
