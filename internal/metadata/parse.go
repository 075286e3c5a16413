package metadata

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"

	"github.com/frederic-klein/pydl/internal/dist"
)

// Parse reads a core metadata document (the RFC 822 style header block of
// a METADATA or PKG-INFO file) into its resolved form. The description
// body after the blank line is ignored.
func Parse(data []byte) (*dist.ResolvedMetadata, error) {
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(data)))
	header, err := tp.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}

	md := &dist.ResolvedMetadata{
		Name:           header.Get("Name"),
		Version:        header.Get("Version"),
		RequiresPython: header.Get("Requires-Python"),
		RequiresDist:   header.Values("Requires-Dist"),
	}
	if md.Name == "" {
		return nil, fmt.Errorf("parsing metadata: missing Name header")
	}
	return md, nil
}
