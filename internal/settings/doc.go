// Package settings loads the engine settings document the runner is started with.
//
// A settings document is YAML. It either carries the settings in the clear:
//
//	settings:
//	  HttpSettings@socket_timeout: "120000"
//	  WsdlSettings@cache-wsdls: "true"
//
// or an encrypted payload produced by Encrypt (and the `suidriver settings
// encrypt` command):
//
//	algorithm: aes-256-gcm
//	encrypted: <base64 salt|nonce|ciphertext>
//
// Encrypted documents need a password. The key is derived with PBKDF2-SHA256
// from the password and a per-document salt. Any failure to read, decode or
// decrypt the document is reported as a config.ConfigurationError so the host
// can refuse to start instead of running with default settings.
//
// Settings are created once at host startup and handed to the engine runtime;
// nothing in this package keeps global state.
package settings
