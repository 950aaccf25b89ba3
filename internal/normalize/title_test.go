package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"石破首相、増税方針を表明 2025/01/10", "石破首相 増税方針を表明"},
		{"石破首相 増税方針を表明", "石破首相 増税方針を表明"},
		{"【速報】台風10号が上陸（2025年1月10日）", "速報 台風10号が上陸"},
		{"会見は10時30分から 1月10日", "会見は から"},
		{"Markets Rally! Update 10:30", "markets rally update"},
		{"ＦＵＬＬ　ＷＩＤＴＨ　１２３", "full width 123"},
		{"Straße", "strasse"},
		{"  --- ", ""},
		{"Report 2025-01-10: results", "report results"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalTitle(tt.in))
		})
	}
}

func TestTitleFingerprint(t *testing.T) {
	assert.Empty(t, TitleFingerprint(""))
	a := TitleFingerprint(CanonicalTitle("石破首相、増税方針を表明 2025/01/10"))
	b := TitleFingerprint(CanonicalTitle("石破首相 増税方針を表明"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}
