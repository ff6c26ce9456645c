package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/leeineian/jill/catalog"
	"github.com/leeineian/jill/proc"
	"github.com/leeineian/jill/sys"
	"github.com/spf13/cobra"
)

// Discord voice frames are 20ms of audio.
const opusFrame = 20 * time.Millisecond

var (
	scanTracks bool
	scanCheck  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [music-folder]",
	Short: "List the playlists the bot would serve",
	Long: `Scan the music folder and print every playlist with its track count.

With --tracks each playlist's files are listed in play order. With --check
every file is read through the Ogg/Opus demuxer to catch broken files before
the bot tries to stream them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&scanTracks, "tracks", false, "List the tracks of each playlist")
	scanCmd.Flags().BoolVar(&scanCheck, "check", false, "Decode every file and report broken ones")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := sys.LoadCatalogConfig()
	if len(args) == 1 {
		cfg.MusicFolder = args[0]
	}
	sys.InitLogger(true, "")

	t, err := sys.LoadTimings(cfg.TimingsFile)
	if err != nil {
		return fmt.Errorf("failed to load timings: %w", err)
	}

	lib := catalog.NewLibrary(catalog.NewScanner(cfg.MusicFolder, t.Library, catalog.NewIDAllocator()))
	playlists, err := lib.Rescan()
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", cfg.MusicFolder, err)
	}

	out := cmd.OutOrStdout()
	if len(playlists) == 0 {
		fmt.Fprintf(out, "No playlists in %s\n", lib.Root())
		return nil
	}

	total, broken := 0, 0
	for _, pl := range playlists {
		fmt.Fprintf(out, "%s (%s tracks)\n", pl.DisplayName, humanize.Comma(int64(pl.TrackCount)))
		total += pl.TrackCount
		if !scanTracks && !scanCheck {
			continue
		}

		tracks, err := lib.Load(pl)
		if err != nil {
			fmt.Fprintf(out, "  ! %v\n", err)
			continue
		}
		for _, tr := range tracks {
			if !scanCheck {
				fmt.Fprintf(out, "  %3d. %s\n", tr.LibraryIndex+1, tr.DisplayName)
				continue
			}
			length, size, err := probeTrack(tr.Path)
			if err != nil {
				broken++
				fmt.Fprintf(out, "  %3d. %s  BROKEN: %v\n", tr.LibraryIndex+1, tr.DisplayName, err)
				continue
			}
			fmt.Fprintf(out, "  %3d. %s  %s, %s\n", tr.LibraryIndex+1, tr.DisplayName, length.Round(time.Second), humanize.Bytes(uint64(size)))
		}
	}

	fmt.Fprintf(out, "\n%s playlists, %s tracks in %s\n",
		humanize.Comma(int64(len(playlists))), humanize.Comma(int64(total)), lib.Root())
	if broken > 0 {
		return fmt.Errorf("%d broken files", broken)
	}
	return nil
}

// probeTrack demuxes a whole file and estimates its length from the packet
// count.
func probeTrack(path string) (time.Duration, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}

	r := proc.NewOggReader(f)
	frames := 0
	for {
		_, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, info.Size(), err
		}
		frames++
	}
	if frames == 0 {
		return 0, info.Size(), errors.New("no audio packets")
	}
	return time.Duration(frames) * opusFrame, info.Size(), nil
}
