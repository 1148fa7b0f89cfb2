package smbclient

import (
	"strings"
)

// cleanPath converts separators to "/" and drops empty segments, leading and
// trailing slashes. "." and ".." segments are kept as given.
func cleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	segments := strings.Split(p, "/")
	kept := segments[:0]
	for _, s := range segments {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "/")
}

// ResolvePath joins a share-relative directory and a file name into a
// canonical remote path. The directory may or may not end with a separator:
//
//	ResolvePath("share/docs/", "a.txt") == "share/docs/a.txt"
//	ResolvePath("share/docs", "a.txt")  == "share/docs/a.txt"
func ResolvePath(dir, name string) string {
	dir = cleanPath(dir)
	name = cleanPath(name)
	switch {
	case dir == "":
		return name
	case name == "":
		return dir
	}
	return dir + "/" + name
}

// SharedDir returns dir with exactly one trailing "/". The share root is "".
func SharedDir(dir string) string {
	dir = cleanPath(dir)
	if dir == "" {
		return ""
	}
	return dir + "/"
}

// ParentDirs returns the ancestors of p from the share root down to its
// immediate parent. Creating them in order is the remote equivalent of
// "mkdir -p".
func ParentDirs(p string) []string {
	segments := strings.Split(cleanPath(p), "/")
	if len(segments) < 2 {
		return nil
	}
	dirs := make([]string, 0, len(segments)-1)
	for i := 1; i < len(segments); i++ {
		dirs = append(dirs, strings.Join(segments[:i], "/"))
	}
	return dirs
}

// DirPath returns every ancestor of dir plus dir itself, root to leaf.
func DirPath(dir string) []string {
	dir = cleanPath(dir)
	if dir == "" {
		return nil
	}
	return append(ParentDirs(dir), dir)
}

// parentDir returns the directory portion of p, "" for top-level entries.
func parentDir(p string) string {
	p = cleanPath(p)
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

// baseName returns the last element of p.
func baseName(p string) string {
	p = cleanPath(p)
	return p[strings.LastIndex(p, "/")+1:]
}

// splitExt splits the last element of p into its stem and extension
// (without the dot). "a.tar.gz" yields ("a.tar", "gz").
func splitExt(p string) (stem, ext string) {
	name := baseName(p)
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// RenamePath builds the destination for renaming orig to newName. The result
// stays in orig's directory, takes newName's stem and newName's extension,
// falling back to orig's extension when newName has none.
//
//	RenamePath("docs/report.pdf", "final")     == "docs/final.pdf"
//	RenamePath("docs/report.pdf", "final.txt") == "docs/final.txt"
func RenamePath(orig, newName string) string {
	stem, ext := splitExt(newName)
	if ext == "" {
		_, ext = splitExt(orig)
	}
	name := stem
	if ext != "" {
		name += "." + ext
	}
	return ResolvePath(parentDir(orig), name)
}

// validatePath validates that a path is safe and doesn't contain
// invalid characters or attempt path traversal outside the share.
// The empty path is the share root.
func validatePath(p string) error {
	if strings.Contains(p, "\x00") {
		return ErrInvalidPath
	}

	// Path traversal check - the walk must never climb above the root
	depth := 0
	for _, s := range strings.Split(strings.ReplaceAll(p, "\\", "/"), "/") {
		switch s {
		case "", ".":
		case "..":
			depth--
		default:
			depth++
		}
		if depth < 0 {
			return ErrInvalidPath
		}
	}
	return nil
}

// toSMBPath converts a share-relative path to SMB path format.
// SMB paths use backslashes and don't have a leading slash.
func toSMBPath(p string) string {
	return strings.ReplaceAll(cleanPath(p), "/", "\\")
}
