package smbclient

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateRenamePolicy(t *testing.T) {
	clock := func() time.Time {
		return time.Date(2024, 3, 5, 14, 7, 9, 350*int(time.Millisecond), time.UTC)
	}
	p := DateRenamePolicy{Now: clock}

	assert.Equal(t, "202403051407093.pdf", p.NewName("scan.pdf"))
	assert.Equal(t, "202403051407093.gz", p.NewName("backup.tar.gz"))
	assert.Equal(t, "202403051407093", p.NewName("README"))

	// Default clock
	assert.Len(t, DateRenamePolicy{}.NewName("x"), len("yyyyMMddHHmmss")+1)
}

func TestUUIDRenamePolicy(t *testing.T) {
	var p UUIDRenamePolicy

	a, b := p.NewName("photo.jpg"), p.NewName("photo.jpg")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, ".jpg"))
	assert.Len(t, strings.TrimSuffix(a, ".jpg"), 36)
	assert.Len(t, p.NewName("noext"), 36)
}

func TestRenamePolicyFunc(t *testing.T) {
	p := RenamePolicyFunc(func(name string) string { return "archived-" + name })
	assert.Equal(t, "archived-a.txt", p.NewName("a.txt"))
	assert.Equal(t, "docs/archived-a.txt", RenamePath("docs/a.txt", p.NewName("a.txt")))
}
