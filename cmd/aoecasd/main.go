// Command aoecasd serves a single virtual disk over ATA over Ethernet,
// backed by either the content-addressed storage.CASBackend or the flat
// storage.FileBackend.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"path/filepath"

	"github.com/mdlayher/raw"
	"go.uber.org/zap"

	"github.com/chronos-tachyon/aoe-cas/aoe"
	"github.com/chronos-tachyon/aoe-cas/blobstore"
	"github.com/chronos-tachyon/aoe-cas/block"
	"github.com/chronos-tachyon/aoe-cas/server"
	"github.com/chronos-tachyon/aoe-cas/server/signal"
	"github.com/chronos-tachyon/aoe-cas/storage"
	"github.com/chronos-tachyon/aoe-cas/target"
)

func main() {
	log.SetPrefix("aoecasd: ")
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	var ifaceFlag, backendFlag, blobRootFlag, fileFlag, metadataFlag string
	var modelFlag, serialFlag, firmwareFlag string
	var shelfFlag uint
	var slotFlag uint
	var sectorsFlag uint64
	var sectorSizeFlag uint
	var cacheBlocksFlag int
	var cacheSizeFlag int64
	var compressFlag bool

	flag.StringVar(&ifaceFlag, "iface", "", "network interface to serve AoE requests on")
	flag.StringVar(&backendFlag, "backend", "cas", "storage backend for the target: \"cas\" or \"file\"")
	flag.StringVar(&blobRootFlag, "blobroot", "", "root directory of the content-addressed blob store (backend=cas)")
	flag.StringVar(&fileFlag, "file", "", "backing file path (backend=file)")
	flag.StringVar(&metadataFlag, "metadata", "", "path to the CAS metadata sidecar file; "+
		"defaults to storage.SnapshotPath(blobroot) when backend=cas and blobroot is set")
	flag.UintVar(&shelfFlag, "shelf", 0, "AoE shelf address for this target")
	flag.UintVar(&slotFlag, "slot", 0, "AoE slot address for this target")
	flag.Uint64Var(&sectorsFlag, "sectors", 0, "total number of sectors exposed by this target")
	flag.UintVar(&sectorSizeFlag, "sectorsize", 512, "sector size in bytes, 512 or 4096")
	flag.IntVar(&cacheBlocksFlag, "cache-blocks", 0, "number of decoded Merkle pointer blocks to cache "+
		"(backend=cas); 0 derives from -cache-size-bytes")
	flag.Int64Var(&cacheSizeFlag, "cache-size-bytes", 0, "byte budget for the Merkle pointer-block cache "+
		"(backend=cas); 0 uses merkle.DefaultCacheSizeBytes")
	flag.BoolVar(&compressFlag, "compress", false, "compress data blocks before storing them (backend=cas)")
	flag.StringVar(&modelFlag, "model", "aoe-cas", "ATA model string reported by IDENTIFY DEVICE")
	flag.StringVar(&serialFlag, "serial", "0", "ATA serial string reported by IDENTIFY DEVICE")
	flag.StringVar(&firmwareFlag, "firmware", "1.0", "ATA firmware string reported by IDENTIFY DEVICE")
	flag.Parse()

	if ifaceFlag == "" {
		log.Fatalf("error: missing required flag: -iface")
	}
	if sectorsFlag == 0 {
		log.Fatalf("error: missing required flag: -sectors")
	}
	if sectorSizeFlag != 512 && sectorSizeFlag != 4096 {
		log.Fatalf("error: -sectorsize must be 512 or 4096, got %d", sectorSizeFlag)
	}
	if shelfFlag > 0xFFFE {
		log.Fatalf("error: -shelf %d is reserved or out of range", shelfFlag)
	}
	if slotFlag > 0xFE {
		log.Fatalf("error: -slot %d is reserved or out of range", slotFlag)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("error: failed to build logger: %v", err)
	}
	defer logger.Sync()

	info := block.DeviceInfo{
		Model:        modelFlag,
		Serial:       serialFlag,
		Firmware:     firmwareFlag,
		TotalSectors: sectorsFlag,
		SectorSize:   uint32(sectorSizeFlag),
		LBA48:        true,
	}

	var backend storage.BlockStorage
	switch backendFlag {
	case "cas":
		if blobRootFlag == "" {
			log.Fatalf("error: missing required flag: -blobroot (backend=cas)")
		}
		store, err := blobstore.NewFileStore(blobRootFlag, logger)
		if err != nil {
			log.Fatalf("error: failed to open blob store %q: %v", blobRootFlag, err)
		}
		metadataPath := metadataFlag
		if metadataPath == "" {
			metadataPath = storage.SnapshotPath(blobRootFlag)
		}
		cfg := storage.CASConfig{
			TotalSectors:   info.TotalSectors,
			SectorSize:     info.SectorSize,
			Model:          info.Model,
			Serial:         info.Serial,
			Firmware:       info.Firmware,
			Compress:       compressFlag,
			CacheBlocks:    cacheBlocksFlag,
			CacheSizeBytes: cacheSizeFlag,
			MetadataPath:   metadataPath,
		}
		cas, err := storage.OpenCASBackend(store, cfg, logger)
		if err != nil {
			log.Fatalf("error: failed to open CAS backend: %v", err)
		}
		backend = cas

	case "file":
		if fileFlag == "" {
			log.Fatalf("error: missing required flag: -file (backend=file)")
		}
		fb, err := storage.OpenFileBackend(fileFlag, info, logger)
		if err != nil {
			log.Fatalf("error: failed to open file backend %q: %v", fileFlag, err)
		}
		backend = fb

	default:
		log.Fatalf("error: unrecognized -backend %q, must be \"cas\" or \"file\"", backendFlag)
	}

	targets := target.New()
	if err := targets.Register(uint16(shelfFlag), uint8(slotFlag), backend); err != nil {
		log.Fatalf("error: failed to register target: %v", err)
	}
	targets.Seal()

	ifi, err := net.InterfaceByName(ifaceFlag)
	if err != nil {
		log.Fatalf("error: unknown interface %q: %v", ifaceFlag, err)
	}
	rawConn, err := raw.ListenPacket(ifi, uint16(aoe.EtherType), nil)
	if err != nil {
		log.Fatalf("error: failed to listen on %q: %v", ifaceFlag, err)
	}
	conn := server.NewRawConn(rawConn, 0)
	defer conn.Close()

	engine := &server.Engine{
		Source:  conn,
		Sink:    conn,
		Targets: targets,
		Log:     logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	catcher := signal.Catch(signal.ShutdownSignals, cancel)
	defer catcher.Close()

	logger.Info("serving AoE target",
		zap.String("iface", ifaceFlag),
		zap.Uint("shelf", shelfFlag),
		zap.Uint("slot", slotFlag),
		zap.String("backend", backendFlag),
		zap.String("blobroot", filepath.Clean(blobRootFlag)))

	if err := engine.Run(ctx); err != nil {
		log.Fatalf("error: engine exited: %v", err)
	}
}
