// Package catalog builds and serves immutable snapshots ("generations")
// of every hosted plugin: parsed manifests, fully loaded file blobs,
// packaged folder bundles, and display metadata, all addressed through a
// flat, densely indexed download table. A generation never changes after
// construction; rebuilds produce a new generation that replaces the old
// one with a single atomic swap while in-flight transfers keep the old
// blobs alive through ordinary references.
package catalog
