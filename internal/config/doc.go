// Package config manages user-level settings stored at
// ~/.plugrelay/config.yaml. It provides functions to load, read, and write
// configuration keys such as the default update server address and the
// serving plugin directory.
package config
