// Package main provides yasdump, a read-only command-line inspector for
// a YAS physical volume: it never writes to the file it opens.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/michailvoronov/yet-another-storage/internal/codec"
	"github.com/michailvoronov/yet-another-storage/internal/device"
	"github.com/michailvoronov/yet-another-storage/internal/entries"
	"github.com/michailvoronov/yet-another-storage/internal/freelist"
	"github.com/michailvoronov/yet-another-storage/internal/layout"
	"github.com/michailvoronov/yet-another-storage/internal/trie"
)

func main() {
	keys := flag.Bool("keys", false, "list every key with its entry offset and value type")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Usage: yasdump [flags] <file.yas>")
		fmt.Println("Flags:")
		flag.PrintDefaults()
		return
	}

	if err := dump(args[0], *keys); err != nil {
		log.Fatalf("yasdump: %v", err)
	}
}

func dump(path string, listKeys bool) error {
	dev, err := device.OpenFileDevice(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	c := codec.New[uint64](dev)
	h, err := c.ReadPVHeader(0)
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	fmt.Printf("version:               %d.%d\n", h.Version.Major, h.Version.Minor)
	fmt.Printf("pv_size:               %d bytes\n", h.PVSize)
	fmt.Printf("cluster_size:          %d bytes\n", h.ClusterSize)
	fmt.Printf("priority:              %d\n", h.Priority)
	fmt.Printf("inverted_index_offset: %d\n", h.InvertedIndexOffset)
	fmt.Printf("freelist_bins_count:   %d\n", h.FreelistBinsCount)

	fh, err := c.ReadFreelistHeader(uint64(layout.PVHeaderSize[uint64]()))
	if err != nil {
		return fmt.Errorf("read freelist header: %w", err)
	}

	fmt.Println("\nfreelist bins:")
	for i := 0; i < layout.BinCount; i++ {
		population := binPopulation(c, fh.Bins[i])
		fmt.Printf("  bin %2d [>= %6d B]: head=%d  entries=%d\n", i, freelist.BinMinSize(i), fh.Bins[i], population)
	}

	em := entries.New[uint64](dev, h.ClusterSize, h.Priority)
	indexOffset, err := em.BootLoad()
	if err != nil {
		return fmt.Errorf("boot load: %w", err)
	}

	blob, err := em.ReadIndexEntry(indexOffset)
	if err != nil {
		return fmt.Errorf("read index entry: %w", err)
	}
	idx, err := trie.Deserialize[uint64, uint32](blob)
	if err != nil {
		return fmt.Errorf("deserialize index: %w", err)
	}

	keyCount := 0
	idx.Walk(func(key []byte, leaf uint64) {
		keyCount++
		if listKeys {
			valueType := "?"
			if st, err := c.ReadPVState(leaf); err == nil {
				valueType = fmt.Sprint(st.ValueType)
			}
			fmt.Printf("  %-30q offset=%-10d type=%s\n", key, leaf, valueType)
		}
	})

	fmt.Printf("\nkeys: %d\n", keyCount)
	return nil
}

// binPopulation walks a bin's LIFO chain purely by following
// next-free-entry pointers, without mutating anything — a read-only
// count, unlike freelist.Manager.Pop which unlinks as it goes.
func binPopulation(c *codec.Codec[uint64], head uint64) int {
	count := 0
	offset := head
	for offset != notExist {
		st, err := c.ReadPVState(offset)
		if err != nil {
			return count
		}

		var next uint64
		switch st.ValueType {
		case layout.Empty4Simple:
			h, err := c.ReadSimple4(offset)
			if err != nil {
				return count
			}
			next = h.NextFreeEntryOffset()
		case layout.Empty8Simple:
			h, err := c.ReadSimple8(offset)
			if err != nil {
				return count
			}
			next = h.NextFreeEntryOffset()
		case layout.EmptyComplex:
			n, err := c.ReadComplexFreePointer(offset)
			if err != nil {
				return count
			}
			next = n
		default:
			return count
		}

		count++
		offset = next
	}
	return count
}

const notExist = ^uint64(0)
