// Package blob abstracts file storage behind opaque references. Records
// carry a ref; only view/download resolve it to bytes.
package blob

import (
	"context"
	"strings"
)

// Object is a fetched blob.
type Object struct {
	Content     []byte
	ContentType string
}

// Store saves and resolves blobs.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (ref string, err error)
	Fetch(ctx context.Context, ref string) (*Object, error)
}

// Router writes new blobs to the local store and routes Fetch by ref scheme:
// http(s) refs go to the remote fetcher, everything else to local. Lets
// records carry provider URLs next to locally uploaded files.
type Router struct {
	local  Store
	remote Store
}

func NewRouter(local, remote Store) *Router {
	return &Router{local: local, remote: remote}
}

func (r *Router) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return r.local.Put(ctx, key, data, contentType)
}

func (r *Router) Fetch(ctx context.Context, ref string) (*Object, error) {
	if r.remote != nil && (strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")) {
		return r.remote.Fetch(ctx, ref)
	}
	return r.local.Fetch(ctx, ref)
}

// GuessContentType maps a filename extension to a MIME type, defaulting to
// application/octet-stream. Used when the stored type is missing or generic.
func GuessContentType(fileName string) string {
	name := strings.ToLower(fileName)
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return "application/octet-stream"
	}
	switch name[idx+1:] {
	case "pdf":
		return "application/pdf"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "txt":
		return "text/plain; charset=utf-8"
	case "csv":
		return "text/csv; charset=utf-8"
	case "json":
		return "application/json"
	case "doc":
		return "application/msword"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case "xls":
		return "application/vnd.ms-excel"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "ppt":
		return "application/vnd.ms-powerpoint"
	case "pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	default:
		return "application/octet-stream"
	}
}
