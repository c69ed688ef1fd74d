package content

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Scheme is the URI scheme of every content URI.
const Scheme = "content"

const (
	idColumn            = "_id"
	sourcePackageColumn = "source_package"
)

var ErrInvalidURI = errors.New("invalid content URI")

// UriData is the parsed form of a content URI addressing a table, or a single row of it.
type UriData struct {
	uri           *url.URL
	table         string
	id            string
	sourcePackage string
}

// ParseURIData parses content://<authority>/<table>[/<id>][?source_package=<pkg>].
func ParseURIData(raw string) (UriData, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return UriData{}, fmt.Errorf("%w: %s: %w", ErrInvalidURI, raw, err)
	}

	if u.Scheme != Scheme {
		return UriData{}, fmt.Errorf("%w: %s: scheme must be %q", ErrInvalidURI, raw, Scheme)
	}
	if u.Host == "" {
		return UriData{}, fmt.Errorf("%w: %s: missing authority", ErrInvalidURI, raw)
	}

	segments := pathSegments(u.Path)
	data := UriData{uri: u}

	switch len(segments) {
	case 1:
		data.table = segments[0]
	case 2:
		if _, err := strconv.ParseInt(segments[1], 10, 64); err != nil {
			return UriData{}, fmt.Errorf("%w: %s: id %q is not a number", ErrInvalidURI, raw, segments[1])
		}
		data.table = segments[0]
		data.id = segments[1]
	default:
		return UriData{}, fmt.Errorf("%w: %s: expected /<table> or /<table>/<id>", ErrInvalidURI, raw)
	}

	data.sourcePackage = u.Query().Get(sourcePackageColumn)

	return data, nil
}

// MustParseURIData is like ParseURIData but panics on error.
func MustParseURIData(raw string) UriData {
	data, err := ParseURIData(raw)
	if err != nil {
		panic(err)
	}

	return data
}

// URI returns a copy of the URI the data was parsed from.
func (d UriData) URI() *url.URL {
	if d.uri == nil {
		return nil
	}
	u := *d.uri

	return &u
}

func (d UriData) Authority() string {
	if d.uri == nil {
		return ""
	}

	return d.uri.Host
}

func (d UriData) Table() string {
	return d.table
}

func (d UriData) HasID() bool {
	return d.id != ""
}

// ID returns the row id addressed by the URI, or 0 when there is none.
func (d UriData) ID() int64 {
	if d.id == "" {
		return 0
	}
	id, _ := strconv.ParseInt(d.id, 10, 64)

	return id
}

func (d UriData) HasSourcePackage() bool {
	return d.sourcePackage != ""
}

func (d UriData) SourcePackage() string {
	return d.sourcePackage
}

// WhereClause returns the fragment restricting an operation to the rows the URI addresses.
// It is empty when the URI addresses a whole table.
func (d UriData) WhereClause() string {
	var idClause, packageClause string
	if d.HasID() {
		idClause = fmt.Sprintf("%s = %d", idColumn, d.ID())
	}
	if d.HasSourcePackage() {
		packageClause = EqualityClause(sourcePackageColumn, d.sourcePackage)
	}

	return ConcatenateClauses(idClause, packageClause)
}

func (d UriData) String() string {
	if d.uri == nil {
		return ""
	}

	return d.uri.String()
}

// WithAppendedID returns a copy of u with id appended as the last path segment.
func WithAppendedID(u *url.URL, id int64) *url.URL {
	out := *u
	out.Path = strings.TrimSuffix(u.Path, "/") + "/" + strconv.FormatInt(id, 10)
	out.RawPath = ""

	return &out
}

func pathSegments(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	return segments
}
