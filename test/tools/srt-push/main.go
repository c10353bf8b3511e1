// Command srt-push plays generated captures to an SRT listener in a loop,
// paced at the rate recorded in the manifest.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	srt "github.com/zsiec/srtgo"

	"github.com/zsiec/siflow/test/tools/tsutil"
)

// defaultRate is used when neither the flag nor the manifest give one.
const defaultRate = 188 * 50

func main() {
	allFlag := flag.Bool("all", false, "Push every stream of the manifest simultaneously")
	fileFlag := flag.String("file", "", "Single capture to push")
	keyFlag := flag.String("key", "", "Stream key (default: filename without extension)")
	addrFlag := flag.String("addr", "127.0.0.1:6000", "SRT server address")
	rateFlag := flag.Float64("rate", 0, "Playout rate in bytes per second (default: manifest rate)")
	flag.Parse()

	if *allFlag {
		pushAll(*addrFlag, *rateFlag)
		return
	}

	filePath := *fileFlag
	if filePath == "" && flag.NArg() > 0 {
		filePath = flag.Arg(0)
	}
	if filePath == "" {
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  srt-push --all                          Push all generated streams\n")
		fmt.Fprintf(os.Stderr, "  srt-push --file stream.ts --key mykey   Push a single stream\n")
		os.Exit(1)
	}

	streamID := *keyFlag
	if streamID == "" {
		base := filepath.Base(filePath)
		streamID = "live/" + base[:len(base)-len(filepath.Ext(base))]
	}
	pushSingle(filePath, streamID, *addrFlag, selectRate(*rateFlag, 0))
}

// selectRate prefers a positive override, then the manifest rate.
func selectRate(override, manifest float64) float64 {
	switch {
	case override > 0:
		return override
	case manifest > 0:
		return manifest
	default:
		return defaultRate
	}
}

func pushAll(addr string, override float64) {
	dir, err := tsutil.FindStreamsDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	m, err := tsutil.ReadManifest(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot read manifest in %s: %v\n", dir, err)
		fmt.Fprintf(os.Stderr, "Run 'go run ./test/tools/gen-sdt' first.\n")
		os.Exit(1)
	}
	if len(m.Streams) == 0 {
		fmt.Fprintf(os.Stderr, "No streams in manifest\n")
		os.Exit(1)
	}

	fmt.Printf("Pushing %d streams to %s\n", len(m.Streams), addr)

	var wg sync.WaitGroup
	for _, s := range m.Streams {
		file := filepath.Join(dir, s.FileName())
		if !tsutil.FileExists(file) {
			fmt.Printf("  Skipping stream %d (%s): file not found\n", s.Number, s.Key)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			streamID := "live/" + s.Key
			fmt.Printf("  Stream %d: %s -> %s\n", s.Number, s.Key, streamID)
			pushSingle(file, streamID, addr, selectRate(override, s.Rate))
		}()

		time.Sleep(200 * time.Millisecond)
	}
	wg.Wait()
}

func pushSingle(filePath, streamID, addr string, bytesPerSec float64) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read file: %v\n", err)
		return
	}
	packetSize := tsutil.TSPacketSize
	if filepath.Ext(filePath) == ".m2ts" {
		packetSize += 4
	}
	if len(data)%packetSize != 0 {
		fmt.Fprintf(os.Stderr, "Warning: file size not a multiple of %d\n", packetSize)
	}
	chunkSize := packetSize * 7

	fmt.Printf("File: %s (%d packets, %.0f bytes/sec)\n", filePath, len(data)/packetSize, bytesPerSec)

	for {
		fmt.Printf("[%s] Connecting to SRT %s...\n", streamID, addr)

		cfg := srt.DefaultConfig()
		cfg.StreamID = streamID

		conn, err := srt.Dial(addr, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[%s] SRT connect failed: %v, retrying...\n", streamID, err)
			time.Sleep(time.Second)
			continue
		}

		fmt.Printf("[%s] Connected, streaming continuously\n", streamID)
		writeErr := streamLoop(conn, data, bytesPerSec, chunkSize, streamID)
		conn.Close()

		if writeErr != nil {
			fmt.Fprintf(os.Stderr, "[%s] Connection lost: %v, reconnecting...\n", streamID, writeErr)
			time.Sleep(time.Second)
		}
	}
}

func streamLoop(conn *srt.Conn, data []byte, bytesPerSec float64, chunkSize int, streamID string) error {
	start := time.Now()
	var sent int64
	lastLog := time.Now()
	const logInterval = 10 * time.Second

	for loop := 1; ; loop++ {
		for i := 0; i < len(data); i += chunkSize {
			end := min(i+chunkSize, len(data))
			if _, err := conn.Write(data[i:end]); err != nil {
				return err
			}
			sent += int64(end - i)

			// Pace against the global clock so loop seams add no gap.
			if ahead := pace(sent, bytesPerSec, time.Since(start)); ahead > 0 {
				time.Sleep(ahead)
			}

			if time.Since(lastLog) >= logInterval {
				fmt.Printf("[%s] loop=%d rate=%.0f B/s (target=%.0f) total=%.1f KB\n",
					streamID, loop, float64(sent)/time.Since(start).Seconds(), bytesPerSec,
					float64(sent)/1024)
				lastLog = time.Now()
			}
		}
	}
}

// pace returns how far ahead of the target rate the sender is.
func pace(sent int64, bytesPerSec float64, elapsed time.Duration) time.Duration {
	expected := time.Duration(float64(sent) / bytesPerSec * float64(time.Second))
	return expected - elapsed
}
