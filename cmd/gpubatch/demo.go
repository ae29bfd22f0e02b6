package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/sarchlab/gpubatch/batch"
	"github.com/sarchlab/gpubatch/gem"
	"github.com/sarchlab/gpubatch/monitoring"
	"github.com/sarchlab/gpubatch/recording"
	"github.com/sarchlab/gpubatch/submission"
	"github.com/sarchlab/gpubatch/va"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a batch-construction demo against the simulated kernel.",
	Long: "`demo` builds and submits a small batch in the requested " +
		"addressing mode, printing the resolved object addresses. " +
		"`--record [path]` writes the submissions to a sqlite database.",
	Run: func(cmd *cobra.Command, _ []string) {
		mode, _ := cmd.Flags().GetString("mode")
		recordPath, _ := cmd.Flags().GetString("record")
		monitor, _ := cmd.Flags().GetBool("monitor")

		var recorder recording.Recorder
		if recordPath != "" {
			recorder = recording.NewSQLiteRecorder(recordPath)
		}

		registry := batch.NewRegistry()

		if monitor {
			m := monitoring.NewMonitor().
				WithPortNumber(monitorPortFromEnv())
			m.RegisterRegistry(registry)
			m.StartServer()
		}

		switch mode {
		case "reloc":
			runRelocDemo(registry, recorder)
		case "softpin":
			runSoftpinDemo(registry, recorder)
		case "both":
			runRelocDemo(registry, recorder)
			runSoftpinDemo(registry, recorder)
		default:
			log.Fatalf("unknown addressing mode %q, "+
				"want reloc, softpin, or both", mode)
		}

		if recorder != nil {
			recorder.Flush()
		}

		if monitor {
			fmt.Println("Demo finished. Monitor still serving, Ctrl-C to stop.")
			select {}
		}
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().String("mode", "both",
		"Addressing mode to demo: reloc, softpin, or both")
	demoCmd.Flags().String("record", "",
		"Record submissions to a sqlite database at this path")
	demoCmd.Flags().Bool("monitor", false,
		"Serve the batch registry over HTTP while the demo runs")
}

func monitorPortFromEnv() int {
	portStr := os.Getenv("GPUBATCH_MONITOR_PORT")
	if portStr == "" {
		return 0
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("bad GPUBATCH_MONITOR_PORT %q: %v", portStr, err)
	}

	return port
}

func runRelocDemo(
	registry batch.Registry,
	recorder recording.Recorder,
) {
	sink := submission.NewSimSink()
	handles := gem.NewSequentialHandleSource(1)

	builder := batch.MakeBuilder().
		WithSink(sink).
		WithHandleSource(handles).
		WithRegistry(registry)
	if recorder != nil {
		builder = builder.WithRecorder(recorder)
	}

	b := builder.Build("RelocDemo")
	defer b.Destroy()

	emitCopy(b, handles.NewHandle(), handles.NewHandle())

	_, err := b.Submit(0, 0, true)
	if err != nil {
		log.Fatalf("reloc demo submission failed: %v", err)
	}

	fmt.Println("Relocation-mode submission completed.")
	printObjects(b)
}

func runSoftpinDemo(
	registry batch.Registry,
	recorder recording.Recorder,
) {
	sink := submission.NewSimSink()
	handles := gem.NewSequentialHandleSource(1)
	allocator := va.NewRangeAllocator(0x1000, 0x10000000)

	builder := batch.MakeBuilder().
		WithAddressingMode(batch.AddressBasedMode).
		WithAllocator(allocator).
		WithSink(sink).
		WithHandleSource(handles).
		WithRegistry(registry)
	if recorder != nil {
		builder = builder.WithRecorder(recorder)
	}

	b := builder.Build("SoftpinDemo")
	defer b.Destroy()

	emitCopy(b, handles.NewHandle(), handles.NewHandle())

	_, err := b.Submit(0, 0, true)
	if err != nil {
		log.Fatalf("softpin demo submission failed: %v", err)
	}

	fmt.Println("Address-based submission completed.")
	printObjects(b)
}

// emitCopy writes a tiny src-to-dst copy into the batch, one patched
// address per object.
func emitCopy(b *batch.Batch, src, dst gem.Handle) {
	const objectSize = 0x1000

	_, err := b.AddObject(src, objectSize, gem.NoAddress, 0, false)
	if err != nil {
		log.Fatalf("adding source object failed: %v", err)
	}

	_, err = b.AddObject(dst, objectSize, gem.NoAddress, 0, true)
	if err != nil {
		log.Fatalf("adding destination object failed: %v", err)
	}

	b.Emit(0x54000000)
	b.EmitPatch(src, 0, gem.DomainRender, gem.DomainNone)
	b.EmitPatch(dst, 0, gem.DomainRender, gem.DomainRender)
	b.Align(8)
}

func printObjects(b *batch.Batch) {
	batchObj := b.BatchObject()
	fmt.Printf("  batch store: handle %d at 0x%x\n",
		batchObj.Handle, batchObj.Address)

	for h := gem.Handle(1); int(h) <= b.NumObjects(); h++ {
		obj, found := b.FindObject(h)
		if !found || obj.Handle == batchObj.Handle {
			continue
		}

		fmt.Printf("  object %d: 0x%x, %d bytes, write=%v\n",
			obj.Handle, obj.Address, obj.Size, obj.Write)
	}
}
