package imagesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogFixture = `{
  "hero": {
    "nestHaus1": "1-NEST-Haus-Titelbild",
    "mobile": {
      "nestHaus1": "1-NEST-Haus-Titelbild-mobile"
    }
  },
  "function": {
    "konfigurator": "12-Konfigurator-Alt"
  },
  "configurations": {
    "placeholder": "/api/placeholder/1200/800?text=Platzhalter",
    "trapezblech": "105-Trapezblech"
  }
}`

func mirrorObj(key string, uploaded time.Time) MirrorObject {
	p, ok := ParseFilename(key)
	if !ok {
		panic("bad fixture " + key)
	}
	return MirrorObject{Key: key, Parsed: p, UploadedAt: uploaded}
}

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog([]byte(catalogFixture))
	require.NoError(t, err)

	assert.Len(t, c, 5)
	assert.Equal(t, "1-NEST-Haus-Titelbild-mobile", c["hero.mobile.nestHaus1"])
	assert.Equal(t, "12-Konfigurator-Alt", c["function.konfigurator"])

	_, err = ParseCatalog([]byte(`{"hero": {"count": 3}}`))
	assert.Error(t, err)
}

func TestCatalog_MarshalRoundTrip(t *testing.T) {
	c, err := ParseCatalog([]byte(catalogFixture))
	require.NoError(t, err)

	data, err := c.Marshal()
	require.NoError(t, err)

	again, err := ParseCatalog(data)
	require.NoError(t, err)
	assert.Equal(t, c, again)

	data2, err := again.Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(data), string(data2))
}

func TestMergeCatalog(t *testing.T) {
	current, err := ParseCatalog([]byte(catalogFixture))
	require.NoError(t, err)

	now := time.Now()
	mirror := []MirrorObject{
		mirrorObj("images/1-NEST-Haus-Titelbild-"+h+".jpg", now),
		mirrorObj("images/1-NEST-Haus-Titelbild-mobile-"+h+".jpg", now),
		mirrorObj("images/12-Konfigurator-Neu-"+h+".jpg", now),
		mirrorObj("images/150-Holzlattung-Laerche-"+h+".jpg", now),
		mirrorObj("images/12-Konfigurator-Neu-mobile-"+h+".jpg", now),
	}

	res, err := MergeCatalog(current, mirror)
	require.NoError(t, err)
	require.True(t, res.Changed())

	require.Len(t, res.Updated, 1)
	assert.Equal(t, CatalogChange{Key: "function.konfigurator", OldValue: "12-Konfigurator-Alt", NewValue: "12-Konfigurator-Neu"}, res.Updated[0])

	assert.Equal(t, []CatalogChange{
		{Key: "function.mobile.konfiguratorNeu", NewValue: "12-Konfigurator-Neu-mobile"},
		{Key: "configurations.holzlattungLaerche", NewValue: "150-Holzlattung-Laerche"},
	}, res.Added)

	assert.Equal(t, "/api/placeholder/1200/800?text=Platzhalter", res.Catalog["configurations.placeholder"])
	assert.Equal(t, "105-Trapezblech", res.Catalog["configurations.trapezblech"], "keys without a synced image are kept")
	assert.Equal(t, 5, res.KeysBefore)
	assert.Equal(t, 7, res.KeysAfter)
	assert.Equal(t, "12-Konfigurator-Alt", current["function.konfigurator"], "input is not mutated")
}

func TestMergeCatalog_Idempotent(t *testing.T) {
	current, err := ParseCatalog([]byte(catalogFixture))
	require.NoError(t, err)

	mirror := []MirrorObject{
		mirrorObj("images/12-Konfigurator-Neu-"+h+".jpg", time.Now()),
		mirrorObj("images/500-Galerie-House-"+h+".jpg", time.Now()),
	}

	first, err := MergeCatalog(current, mirror)
	require.NoError(t, err)
	require.True(t, first.Changed())

	second, err := MergeCatalog(first.Catalog, mirror)
	require.NoError(t, err)
	assert.False(t, second.Changed())
	assert.Equal(t, first.Catalog, second.Catalog)

	out1, err := first.Catalog.Marshal()
	require.NoError(t, err)
	out2, err := second.Catalog.Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(out1), string(out2))
}

func TestMergeCatalog_NewestMirrorObjectWins(t *testing.T) {
	current := Catalog{"function.konfigurator": "12-Alt"}
	old := time.Now().Add(-time.Hour)
	mirror := []MirrorObject{
		mirrorObj("images/12-Neu-"+h+".jpg", time.Now()),
		mirrorObj("images/12-Zwischenstand-"+h+".jpg", old),
	}

	res, err := MergeCatalog(current, mirror)
	require.NoError(t, err)
	assert.Equal(t, "12-Neu", res.Catalog["function.konfigurator"])
}

func TestMergeCatalog_NameCollision(t *testing.T) {
	current := Catalog{"hero.titelbild": "2-Titelbild"}
	res, err := MergeCatalog(current, []MirrorObject{mirrorObj("images/3-Titelbild-"+h+".jpg", time.Now())})
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	assert.Equal(t, "hero.titelbild3", res.Added[0].Key)

	placeholder := "/api/placeholder/1200/800?text=x"
	current = Catalog{
		"hero.titelbild":    "2-Titelbild",
		"hero.titelbild3":   placeholder,
		"hero.titelbild3_2": "9-Titelbild",
	}
	res, err = MergeCatalog(current, []MirrorObject{mirrorObj("images/3-Titelbild-"+h+".jpg", time.Now())})
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	assert.Equal(t, "hero.titelbild3_3", res.Added[0].Key)
	assert.Empty(t, res.Updated)
	assert.Equal(t, placeholder, res.Catalog["hero.titelbild3"])
	assert.Equal(t, "9-Titelbild", res.Catalog["hero.titelbild3_2"])
	assert.Equal(t, "2-Titelbild", res.Catalog["hero.titelbild"])
}

func TestInferCategory(t *testing.T) {
	tests := []struct {
		number int
		title  string
		want   string
	}{
		{1, "Titel", "hero"},
		{8, "Titel", "hero"},
		{9, "Titel", "configurations"},
		{12, "Ablauf", "function"},
		{39, "Ablauf", "function"},
		{150, "House", "configurations"},
		{998, "Team", "aboutus"},
		{500, "Tiny-House", "gallery"},
		{501, "Gallery-Bild", "gallery"},
		{502, "Sonstiges", "configurations"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferCategory(tt.number, tt.title), "%d %s", tt.number, tt.title)
	}
}

func TestConstantName(t *testing.T) {
	assert.Equal(t, "nestHausTitelbild", ConstantName("NEST-Haus-Titelbild"))
	assert.Equal(t, "holzlattungLärche", ConstantName("Holzlattung Lärche"))
	assert.Equal(t, "image80m2", ConstantName("80m2"))
}
