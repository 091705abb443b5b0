package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFeatureID   = "us7000abcd"
	testPlace       = "10 km SW of Ridgecrest, CA"
	testRetrievedAt = int64(1714140000000)
)

func decodeFeature(t *testing.T, data string) Feature {
	t.Helper()
	var f Feature
	require.NoError(t, json.Unmarshal([]byte(data), &f))
	return f
}

func TestToRecord(t *testing.T) {
	t.Run("complete feature", func(t *testing.T) {
		data := `{"type":"Feature","id":"us7000abcd","properties":{"mag":5.1,"place":"10 km SW of Ridgecrest, CA","time":1714130000000,"tsunami":0,"alert":null,"detail":"https://example.test/detail/us7000abcd.geojson"},"geometry":{"type":"Point","coordinates":[-117.6,35.7,8.2]}}`
		rec, err := ToRecord(decodeFeature(t, data), testRetrievedAt)

		require.NoError(t, err)
		assert.Equal(t, testFeatureID, rec.ID)
		assert.Equal(t, int64(1714130000000), rec.EventTime)
		assert.Equal(t, 35.7, rec.Latitude)
		assert.Equal(t, -117.6, rec.Longitude)
		assert.Equal(t, 8.2, rec.Depth)
		assert.Equal(t, 5.1, rec.Magnitude)
		assert.Equal(t, testPlace, rec.Place)
		assert.Equal(t, "https://example.test/detail/us7000abcd.geojson", rec.DetailURL)
		assert.JSONEq(t, data, string(rec.RawFeature))
		assert.Equal(t, testRetrievedAt, rec.RetrievedAt)
	})

	t.Run("detail url fallback", func(t *testing.T) {
		data := `{"id":"ci40000001","properties":{"mag":2.0,"place":"Somewhere","time":1},"geometry":{"coordinates":[1,2,3]}}`
		rec, err := ToRecord(decodeFeature(t, data), testRetrievedAt)

		require.NoError(t, err)
		assert.Equal(t, "https://earthquake.usgs.gov/fdsnws/event/1/query?eventid=ci40000001&format=geojson", rec.DetailURL)
	})

	t.Run("zero magnitude is valid", func(t *testing.T) {
		data := `{"id":"nc1","properties":{"mag":0,"place":"Geysers","time":1},"geometry":{"coordinates":[1,2,0]}}`
		rec, err := ToRecord(decodeFeature(t, data), testRetrievedAt)

		require.NoError(t, err)
		assert.Equal(t, 0.0, rec.Magnitude)
		assert.Equal(t, 0.0, rec.Depth)
	})

	rejects := []struct {
		name string
		data string
	}{
		{"missing id", `{"properties":{"mag":1,"place":"x","time":1},"geometry":{"coordinates":[1,2,3]}}`},
		{"missing properties", `{"id":"a","geometry":{"coordinates":[1,2,3]}}`},
		{"missing geometry", `{"id":"a","properties":{"mag":1,"place":"x","time":1}}`},
		{"short coordinates", `{"id":"a","properties":{"mag":1,"place":"x","time":1},"geometry":{"coordinates":[1,2]}}`},
		{"null depth", `{"id":"a","properties":{"mag":1,"place":"x","time":1},"geometry":{"coordinates":[1,2,null]}}`},
		{"null magnitude", `{"id":"a","properties":{"mag":null,"place":"x","time":1},"geometry":{"coordinates":[1,2,3]}}`},
		{"missing place", `{"id":"a","properties":{"mag":1,"time":1},"geometry":{"coordinates":[1,2,3]}}`},
		{"missing time", `{"id":"a","properties":{"mag":1,"place":"x"},"geometry":{"coordinates":[1,2,3]}}`},
	}
	for _, tc := range rejects {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ToRecord(decodeFeature(t, tc.data), testRetrievedAt)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestFeature_RawRoundTrip(t *testing.T) {
	data := `{"type":"Feature","id":"x1","properties":{"mag":3.2,"place":"p","time":5,"extra":{"nested":true}},"geometry":{"coordinates":[1,2,3]}}`
	f := decodeFeature(t, data)

	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, data, string(out), "unknown upstream fields survive re-encoding")

	mag, ok := f.Magnitude()
	assert.True(t, ok)
	assert.Equal(t, 3.2, mag)

	ts, ok := f.EventTime()
	assert.True(t, ok)
	assert.Equal(t, int64(5), ts)
}

func TestFeature_Accessors(t *testing.T) {
	f := decodeFeature(t, `{"id":"x","properties":{"tsunami":1,"alert":"orange"}}`)
	assert.True(t, f.HasTsunamiFlag())
	assert.Equal(t, "orange", f.AlertLevel())

	_, ok := f.Magnitude()
	assert.False(t, ok)

	empty := Feature{ID: "y"}
	assert.False(t, empty.HasTsunamiFlag())
	assert.Empty(t, empty.AlertLevel())
	_, ok = empty.EventTime()
	assert.False(t, ok)
}
