package toolspec

import (
	"strconv"
	"strings"
)

// Issue is a single located failure. SchemaPointer names the schema keyword that rejected
// the value; InstancePath names the offending location inside the value.
type Issue struct {
	SchemaPointer string `json:"schemaPointer"`
	InstancePath  string `json:"instancePath"`
	Message       string `json:"message"`
}

func (i Issue) String() string {
	path := i.InstancePath
	if path == "" {
		path = "/"
	}
	if i.SchemaPointer == "" {
		return path + ": " + i.Message
	}
	return path + ": " + i.Message + " (schema " + i.SchemaPointer + ")"
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// joinPointer appends RFC 6901 reference tokens to base. The root pointer is "".
func joinPointer(base string, tokens ...string) string {
	var b strings.Builder
	b.WriteString(base)
	for _, t := range tokens {
		b.WriteByte('/')
		b.WriteString(pointerEscaper.Replace(t))
	}
	return b.String()
}

func indexPointer(base string, i int) string {
	return base + "/" + strconv.Itoa(i)
}

// IssuePaths returns the instance paths of the issues, for logging.
func IssuePaths(issues []Issue) string {
	paths := make([]string, len(issues))
	for i, is := range issues {
		paths[i] = is.InstancePath
	}
	return strings.Join(paths, ",")
}
