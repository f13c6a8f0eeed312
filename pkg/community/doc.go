// Package community provides the data-access and object-storage layer of the
// community admin panel.
//
// It exposes a generic DocumentRepository over a document store, an
// ObjectRepository over a binary object store, and a Service that composes
// the two for downloads and signed upload/download URLs. Backends live in
// subpackages: docstore/{memory,mongodb,postgres} and
// objectstore/{memory,s3,minio}.
//
// Metadata Strategy
//
// Entities are authoritative for presentation metadata (filename, content
// type). The object store is authoritative only for bytes. Downloads never
// read the content type back from the stored object.
package community
