// Package manifest handles parsing and validation of plugin.toml
// descriptors. Each hosted plugin directory carries one descriptor naming
// the plugin, its semantic version, the files it installs, and optional
// folder bundles and display metadata. Descriptors are validated against
// an embedded JSON schema before parsing.
package manifest
