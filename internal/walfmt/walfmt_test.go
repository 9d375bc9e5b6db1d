package walfmt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWALRecordRoundTrip(t *testing.T) {
	rec := Record{Op: OpInsert, ID: 42, Vector: []float32{1, 2, 3}, Payload: []byte(`{"cat":"a"}`)}
	enc, err := EncodeWALRecord(rec)
	require.NoError(t, err)

	got, err := ReadRecord(bytes.NewReader(enc))
	require.NoError(t, err)
	assert.Equal(t, rec.Op, got.Op)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, string(rec.Payload), string(got.Payload))
	assert.Equal(t, []float32{1, 2, 3}, got.Vector)
}

func TestDeleteRecordHasEmptyVectorAndPayload(t *testing.T) {
	rec := Record{Op: OpDelete, ID: 7}
	enc, err := EncodeWALRecord(rec)
	require.NoError(t, err)

	got, err := ReadRecord(bytes.NewReader(enc))
	require.NoError(t, err)
	assert.Empty(t, got.Vector)
	assert.Empty(t, got.Payload)
}

func TestCorruptCRCDetected(t *testing.T) {
	rec := Record{Op: OpInsert, ID: 1, Vector: []float32{1, 2}, Payload: []byte("x")}
	enc, err := EncodeWALRecord(rec)
	require.NoError(t, err)
	enc[len(enc)-1] ^= 0xFF // flip a byte in the trailing crc32

	_, err = ReadRecord(bytes.NewReader(enc))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestTruncatedTailDetected(t *testing.T) {
	rec := Record{Op: OpInsert, ID: 1, Vector: []float32{1, 2, 3, 4}, Payload: []byte("hello")}
	enc, err := EncodeWALRecord(rec)
	require.NoError(t, err)
	truncated := enc[:len(enc)-3]

	_, err = ReadRecord(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestMultipleRecordsSequential(t *testing.T) {
	var buf bytes.Buffer
	recs := []Record{
		{Op: OpInsert, ID: 1, Vector: []float32{1}, Payload: []byte("a")},
		{Op: OpUpdate, ID: 1, Vector: []float32{2}, Payload: []byte("b")},
		{Op: OpDelete, ID: 1},
	}
	for _, r := range recs {
		enc, err := EncodeWALRecord(r)
		require.NoError(t, err)
		buf.Write(enc)
	}

	for i, want := range recs {
		got, err := ReadRecord(&buf)
		require.NoErrorf(t, err, "record %d", i)
		assert.Equalf(t, want.Op, got.Op, "record %d", i)
	}
}

func TestSnapshotHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshotHeader(&buf, 123))
	count, err := ReadSnapshotHeader(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, 123, count)
}

func TestSnapshotHeaderRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("XXXX")
	_ = buf.WriteByte(0)
	_ = buf.WriteByte(0)
	for i := 0; i < 8; i++ {
		_ = buf.WriteByte(0)
	}
	_, err := ReadSnapshotHeader(buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestSnapshotEntryRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshotEntry(&buf, 9, []float32{1, 2, 3}, []byte(`{}`)))
	id, vec, payload, err := ReadSnapshotEntry(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, 9, id)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.Equal(t, "{}", string(payload))
}
