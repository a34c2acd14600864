package server

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/plugrelay/plugrelay/internal/catalog"
)

// tryDownload performs one full data-plane exchange.
func tryDownload(addr string, index uint64) ([]byte, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	if _, err := conn.Write(buf[:]); err != nil {
		return nil, err
	}
	return io.ReadAll(conn)
}

// download is tryDownload that fails the test on transport errors.
func download(t *testing.T, s *Server, index uint64) []byte {
	t.Helper()
	data, err := tryDownload(s.testDataAddr(), index)
	if err != nil {
		t.Fatalf("downloading index %#x: %v", index, err)
	}
	return data
}

func TestDownloadMatchesDeclaredSize(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "foo", fooServerDescriptor, map[string]string{
		"foo.bin": "payload-bin",
		"foo.cfg": "payload-cfg",
	})
	s := startServer(t, root)

	var resp wireResponse
	controlExchange(t, s, updateLine("Foo", "0.9.0", false), &resp)
	if resp.Code != "Update" {
		t.Fatalf("code = %q", resp.Code)
	}

	want := []string{"payload-bin", "payload-cfg"}
	for i, f := range resp.RequiredFiles {
		data := download(t, s, f.DownloadIndex)
		if uint64(len(data)) != f.Size {
			t.Errorf("file %d: got %d bytes, declared %d", i, len(data), f.Size)
		}
		if string(data) != want[i] {
			t.Errorf("file %d payload = %q, want %q", i, data, want[i])
		}
	}
}

func TestUnknownIndexClosesWithZeroBytes(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "foo", fooServerDescriptor, map[string]string{
		"foo.bin": "a", "foo.cfg": "b",
	})
	s := startServer(t, root)

	gen := s.store.Current()

	// At the table bound, far beyond it, and with a bogus generation tag.
	for _, index := range []uint64{
		catalog.EncodeIndex(gen.Seq, gen.TableLen()),
		catalog.EncodeIndex(gen.Seq, 1<<30),
		catalog.EncodeIndex(gen.Seq+9999, 0),
	} {
		if data := download(t, s, index); len(data) != 0 {
			t.Errorf("index %#x returned %d bytes, want 0", index, len(data))
		}
	}
}

func TestStaleGenerationIndexRejected(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "foo", fooServerDescriptor, map[string]string{
		"foo.bin": "old-a", "foo.cfg": "old-b",
	})
	s := startServer(t, root)

	var offer wireResponse
	controlExchange(t, s, updateLine("Foo", "0.9.0", false), &offer)
	staleIndex := offer.RequiredFiles[0].DownloadIndex

	// Swap in a rebuilt generation; the old offer's indices must die with
	// the old generation even though the new table is at least as long.
	s.rebuild()

	if data := download(t, s, staleIndex); len(data) != 0 {
		t.Errorf("stale index returned %d bytes, want 0", len(data))
	}

	// A fresh offer works against the new generation.
	var fresh wireResponse
	controlExchange(t, s, updateLine("Foo", "0.9.0", false), &fresh)
	if data := download(t, s, fresh.RequiredFiles[0].DownloadIndex); string(data) != "old-a" {
		t.Errorf("fresh index payload = %q", data)
	}
}

func TestConcurrentDownloadsGetOwnPayloads(t *testing.T) {
	root := t.TempDir()
	big := make([]byte, 256*1024)
	for i := range big {
		big[i] = byte(i % 251)
	}
	writePlugin(t, root, "foo", fooServerDescriptor, map[string]string{
		"foo.bin": string(big),
		"foo.cfg": "tiny",
	})
	s := startServer(t, root)

	var offer wireResponse
	controlExchange(t, s, updateLine("Foo", "0.9.0", false), &offer)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			f := offer.RequiredFiles[n%2]
			data, err := tryDownload(s.testDataAddr(), f.DownloadIndex)
			if err != nil {
				errs <- err.Error()
				return
			}
			if uint64(len(data)) != f.Size {
				errs <- "length mismatch"
				return
			}
			if n%2 == 0 {
				for j := range data {
					if data[j] != byte(j%251) {
						errs <- "payload corrupted"
						return
					}
				}
			} else if string(data) != "tiny" {
				errs <- "small payload corrupted"
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
}
