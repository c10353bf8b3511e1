// Command gen-sdt writes transport stream captures carrying Service
// Description Tables, plus a manifest describing them, for sdtdump and
// srt-push.
//
// Usage:
//
//	go run ./test/tools/gen-sdt [-out test/streams]
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/zsiec/siflow/internal/mpegts"
	"github.com/zsiec/siflow/internal/tstest"
	"github.com/zsiec/siflow/sdt"
	"github.com/zsiec/siflow/test/tools/tsutil"
)

// servicesPerSection keeps sections well under the 1024 byte SDT limit.
const servicesPerSection = 8

var streams = []tsutil.StreamConfig{
	{Number: 1, Key: "mux1", TSID: 0x0401, ONID: 0x233A, Services: 4, Versions: 1, Repeat: 10},
	{Number: 2, Key: "mux2", TSID: 0x0402, ONID: 0x233A, Services: 6, Versions: 3, Repeat: 5},
	{Number: 3, Key: "mux3", TSID: 0x1004, ONID: 0x0001, Services: 20, Versions: 2, Repeat: 4},
	{Number: 4, Key: "mux4_m2ts", TSID: 0x0010, ONID: 0x0085, Services: 3, Versions: 2, Repeat: 4, Format: "m2ts"},
}

var (
	channelNames = []string{"News", "Sport", "Movies", "Kids", "Music", "Weather", "Docs", "Travel"}
	providers    = []string{"ACME", "Northwind", "Globex"}
)

func main() {
	out := flag.String("out", "", "output directory (default: test/streams under the module root)")
	seed := flag.Int64("seed", 42, "random seed for service attributes")
	flag.Parse()

	dir := *out
	if dir == "" {
		var err error
		if dir, err = tsutil.FindStreamsDir(); err != nil {
			fatal("%v", err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fatal("create streams dir: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	fmt.Println("=== SDT Stream Generator ===")
	for i, sc := range streams {
		data, cycle := build(sc, rng)
		sc.Rate = float64(cycle) * 2
		sc.Description = fmt.Sprintf("tsid 0x%04X onid 0x%04X, %d services, %d versions", sc.TSID, sc.ONID, sc.Services, sc.Versions)
		streams[i] = sc

		path := filepath.Join(dir, sc.FileName())
		if err := os.WriteFile(path, data, 0o644); err != nil {
			fatal("write %s: %v", path, err)
		}
		fmt.Printf("  %s: %s (%d bytes)\n", path, sc.Description, len(data))
	}

	m := &tsutil.Manifest{
		Generated: time.Now().UTC().Format(time.RFC3339),
		Streams:   streams,
	}
	if err := tsutil.WriteManifest(dir, m); err != nil {
		fatal("write manifest: %v", err)
	}
	fmt.Printf("=== Done! %d streams generated in %s ===\n", len(streams), dir)
}

// build renders a capture: every version of the table is repeated
// sc.Repeat times, each repetition followed by an SDT other section and
// null packets. It returns the stream and the size of one repetition.
func build(sc tsutil.StreamConfig, rng *rand.Rand) ([]byte, int) {
	var (
		cc    uint8
		pkts  [][]byte
		cycle int
	)
	base := services(sc, rng)
	other := tstest.SDTSection(tstest.TableSDTOther, sc.TSID+1, sc.ONID, 0, 0, 0, base[:1]...)

	for v := 0; v < sc.Versions; v++ {
		sections := sectionsFor(sc, uint8(v), rename(base, v))
		start := len(pkts)
		for r := 0; r < sc.Repeat; r++ {
			for _, s := range sections {
				pkts = append(pkts, tstest.Packetize(s, mpegts.PIDSDT, &cc)...)
			}
			pkts = append(pkts, tstest.Packetize(other, mpegts.PIDSDT, &cc)...)
			for n := 0; n < 4; n++ {
				pkts = append(pkts, nullPacket())
			}
			if r == 0 {
				cycle = (len(pkts) - start) * tsutil.TSPacketSize
			}
		}
	}

	data := tstest.Join(pkts...)
	if sc.Format == "m2ts" {
		data = timestamped(data)
	}
	return data, cycle
}

func services(sc tsutil.StreamConfig, rng *rand.Rand) []tstest.Service {
	out := make([]tstest.Service, sc.Services)
	for i := range out {
		out[i] = tstest.Service{
			ID:          0x1000 + uint16(i) + 1,
			EITPresent:  true,
			EITSchedule: rng.Intn(2) == 0,
			Running:     sdt.RunningRunning,
			FreeCA:      rng.Intn(4) == 0,
		}
		if i%7 == 6 {
			out[i].Running = sdt.RunningNotRunning
		}
	}
	return out
}

// rename gives every service of version v its service descriptor. The
// last service carries a Cyrillic name in ISO/IEC 8859-5.
func rename(base []tstest.Service, v int) []tstest.Service {
	out := make([]tstest.Service, len(base))
	for i, s := range base {
		name := []byte(fmt.Sprintf("%s %d", channelNames[i%len(channelNames)], i+1))
		if v > 0 {
			name = append(name, fmt.Sprintf(" v%d", v)...)
		}
		if i == len(base)-1 {
			if cyr, err := charmap.ISO8859_5.NewEncoder().Bytes([]byte("Новости")); err == nil {
				name = append([]byte{0x01}, cyr...)
			}
		}
		provider := []byte(providers[i%len(providers)])
		s.Descriptors = tstest.ServiceDescriptor(0x01, provider, name)
		out[i] = s
	}
	return out
}

func sectionsFor(sc tsutil.StreamConfig, version uint8, svcs []tstest.Service) [][]byte {
	var chunks [][]tstest.Service
	for len(svcs) > servicesPerSection {
		chunks = append(chunks, svcs[:servicesPerSection])
		svcs = svcs[servicesPerSection:]
	}
	chunks = append(chunks, svcs)

	last := uint8(len(chunks) - 1)
	out := make([][]byte, len(chunks))
	for i, c := range chunks {
		out[i] = tstest.SDTSection(tstest.TableSDTActual, sc.TSID, sc.ONID, version, uint8(i), last, c...)
	}
	return out
}

func nullPacket() []byte {
	pkt := make([]byte, tsutil.TSPacketSize)
	pkt[0] = mpegts.SyncByte
	pkt[1] = byte(mpegts.PIDNull >> 8)
	pkt[2] = byte(mpegts.PIDNull & 0xFF)
	pkt[3] = 0x10
	return pkt
}

// timestamped prefixes every packet with a 4-byte arrival timestamp.
func timestamped(ts []byte) []byte {
	out := make([]byte, 0, len(ts)/tsutil.TSPacketSize*(tsutil.TSPacketSize+4))
	var clock uint32
	for off := 0; off+tsutil.TSPacketSize <= len(ts); off += tsutil.TSPacketSize {
		out = append(out, byte(clock>>24)&0x3F, byte(clock>>16), byte(clock>>8), byte(clock))
		out = append(out, ts[off:off+tsutil.TSPacketSize]...)
		clock += 2700
	}
	return out
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
