// Package buildinfo provides the version number and build details of
// the devserve binary.
package buildinfo

import (
	"sort"
	"strings"
)

// Version is the release version. It is overridden by the release
// build scripts with -ldflags.
var Version = "v0.2.0-DEV"

// Tags contains the build tags the binary was compiled with.
// `cgo` is detected in this package, other tags are appended by the
// files they enable.
var Tags []string

// GetLinkingAndTags tells how the executable was linked and returns
// space separated build tags or the string "none".
func GetLinkingAndTags() (linking, tagString string) {
	linking = "static"
	tagList := []string{}
	for _, tag := range Tags {
		if tag == "cgo" {
			linking = "dynamic"
		} else {
			tagList = append(tagList, tag)
		}
	}
	if len(tagList) > 0 {
		sort.Strings(tagList)
		tagString = strings.Join(tagList, " ")
	} else {
		tagString = "none"
	}
	return
}
