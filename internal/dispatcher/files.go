package dispatcher

import (
	"context"
	"os"
	"path/filepath"

	"github.com/segmentio/encoding/json"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dcserr"
)

type resolvePathRequest struct {
	Path string `json:"path"`
}

type getFileInfoRequest struct {
	Path string `json:"path"`
}

// FileInfo is the subset of file metadata in scope here: size and mtime.
// Parsing G-code file headers for print-time estimates, filament usage,
// etc. is the file-info *parsing* concern spec §1 calls out as glue, out
// of scope for the IPC core.
type FileInfo struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"`
}

func (d *Dispatcher) registerFileKinds() {
	fileModes := modes(connection.ModeCommand, connection.ModeIntercept)

	d.register(&Kind{
		Name: "ResolvePath", AllowedModes: fileModes,
		Permissions: []connection.Permission{connection.FileSystemAccess},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req resolvePathRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad ResolvePath request: %v", err)
			}
			if req.Path == "" {
				return nil, dcserr.New(dcserr.InvalidArgument, "path is required")
			}
			resolved, err := filepath.Abs(req.Path)
			if err != nil {
				return nil, dcserr.New(dcserr.InvalidArgument, "cannot resolve %q: %v", req.Path, err)
			}
			return resolved, nil
		},
	})

	d.register(&Kind{
		Name: "GetFileInfo", AllowedModes: fileModes,
		Permissions: []connection.Permission{connection.FileSystemAccess},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req getFileInfoRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad GetFileInfo request: %v", err)
			}
			st, err := os.Stat(req.Path)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, dcserr.New(dcserr.NotFound, "no such file: %s", req.Path)
				}
				return nil, dcserr.New(dcserr.IoError, "stat %s: %v", req.Path, err)
			}
			return FileInfo{Path: req.Path, Size: st.Size(), LastModified: st.ModTime().Unix()}, nil
		},
	})
}
