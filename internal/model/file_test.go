package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/marianozunino/gallery/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDAcceptsStringsAndNumbers(t *testing.T) {
	var rec FileRecord
	err := json.Unmarshal([]byte(`{"id": 1, "thumbId": "abc-11"}`), &rec)
	require.NoError(t, err)

	assert.Equal(t, ID("1"), rec.ID)
	assert.Equal(t, ID("abc-11"), rec.ThumbID)
}

func TestIDRejectsObjects(t *testing.T) {
	var rec FileRecord
	err := json.Unmarshal([]byte(`{"id": {"nested": true}}`), &rec)
	assert.Error(t, err)
}

func TestDerivedURLsAreSetOnce(t *testing.T) {
	rec := &FileRecord{ID: "1"}
	assert.Empty(t, rec.ThumbnailURL())
	assert.Empty(t, rec.FullURL())

	assert.True(t, rec.SetThumbnailURL("blob:gallery/a"))
	assert.False(t, rec.SetThumbnailURL("blob:gallery/b"))
	assert.Equal(t, "blob:gallery/a", rec.ThumbnailURL())

	assert.True(t, rec.SetFullURL("blob:gallery/c"))
	assert.False(t, rec.SetFullURL("blob:gallery/d"))
	assert.Equal(t, "blob:gallery/c", rec.FullURL())
}

func TestDerivedURLsAreNotSerialized(t *testing.T) {
	rec := &FileRecord{ID: "1", ThumbID: "11", Name: "a.png"}
	rec.SetThumbnailURL("blob:gallery/a")

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "blob:")
}

func TestPreviewable(t *testing.T) {
	tests := []struct {
		mime        string
		image       bool
		video       bool
		previewable bool
	}{
		{"image/png", true, false, true},
		{"video/mp4", false, true, true},
		{"application/pdf", false, false, false},
		{"", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			rec := &FileRecord{Type: tt.mime}
			assert.Equal(t, tt.image, rec.IsImage())
			assert.Equal(t, tt.video, rec.IsVideo())
			assert.Equal(t, tt.previewable, rec.Previewable())
		})
	}
}

func TestDayKeyUsesLocalCalendarDay(t *testing.T) {
	est := time.FixedZone("UTC-5", -5*60*60)
	rec := &FileRecord{UploadDate: time.Date(2024, 3, 2, 1, 0, 0, 0, time.UTC)}

	assert.Equal(t, "2024-03-01", rec.DayKey(est))
	assert.Equal(t, "2024-03-02", rec.DayKey(time.UTC))
}

func TestValidate(t *testing.T) {
	valid := &FileRecord{ID: "1", ThumbID: "11", Name: "a.png", UploadDate: time.Now()}
	assert.NoError(t, valid.Validate())

	missing := &FileRecord{ID: "2"}
	err := missing.Validate()
	var anomaly *apperr.ValidationAnomaly
	require.True(t, errors.As(err, &anomaly))
	assert.Contains(t, anomaly.Reason, "thumbId")
	assert.Contains(t, anomaly.Reason, "name")
	assert.Contains(t, anomaly.Reason, "uploadDate")

	negative := &FileRecord{ID: "3", ThumbID: "33", Name: "b", UploadDate: time.Now(), Size: -1}
	assert.Error(t, negative.Validate())
}

func TestDecodeFileList(t *testing.T) {
	payload := `[
		{"id":"1","thumbId":"11","name":"a.png","type":"image/png","size":10,"uploadDate":"2024-03-01T23:30:00Z"},
		{"id":"2","thumbId":"12","name":"b.mp4","type":"video/mp4","size":20,"uploadDate":"2024-03-02T01:00:00Z"}
	]`

	records, err := DecodeFileList([]byte(payload))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, ID("1"), records[0].ID)
	assert.Equal(t, "a.png", records[0].Name)
	assert.Equal(t, int64(20), records[1].Size)
	assert.True(t, records[1].UploadDate.Equal(time.Date(2024, 3, 2, 1, 0, 0, 0, time.UTC)))
	assert.Empty(t, records[0].ThumbnailURL())
}

func TestDecodeFileListEmptyArray(t *testing.T) {
	records, err := DecodeFileList([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDecodeFileListNonArray(t *testing.T) {
	for _, payload := range []string{`null`, `{"files":[]}`, `"nope"`, ``, `42`} {
		t.Run(payload, func(t *testing.T) {
			records, err := DecodeFileList([]byte(payload))
			assert.Empty(t, records)

			var anomaly *apperr.ValidationAnomaly
			assert.True(t, errors.As(err, &anomaly))
		})
	}
}

func TestDecodeFileListDropsInvalidRecords(t *testing.T) {
	payload := `[
		{"id":"1","thumbId":"11","name":"a.png","type":"image/png","size":10,"uploadDate":"2024-03-01T10:00:00Z"},
		{"id":"2","name":"missing-thumb.png","uploadDate":"2024-03-01T10:00:00Z"},
		{"id":"3","thumbId":"13","name":"bad-date","uploadDate":"yesterday"},
		{"id":"4","thumbId":"14","name":"d.png","type":"image/png","size":40,"uploadDate":"2024-03-01T11:00:00Z"}
	]`

	records, err := DecodeFileList([]byte(payload))
	require.Len(t, records, 2)
	assert.Equal(t, ID("1"), records[0].ID)
	assert.Equal(t, ID("4"), records[1].ID)

	var anomaly *apperr.ValidationAnomaly
	require.True(t, errors.As(err, &anomaly))
	assert.Contains(t, anomaly.Reason, "dropped 2 invalid record(s)")
}
