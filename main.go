/*
Copyright (C) 2026  voxcp Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
/*
	voxcp shared file cache for sparse volumetric grid sequences
*/
package main

import "os"
import "io"
import "fmt"
import "flag"
import "sort"
import "strconv"
import "strings"
import "syscall"
import "os/signal"
import "path/filepath"
import "runtime/pprof"
import "github.com/chzyer/readline"
import "github.com/dc0d/onexit"
import "github.com/docker/go-units"
import "golang.org/x/text/collate"
import "golang.org/x/text/language"
import "github.com/launix-de/voxcp/volume"

const newprompt = "\033[32m>\033[0m "

func main() {
	fmt.Print(`voxcp Copyright (C) 2026  voxcp Contributors
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;

`)

	basepath := "data"
	flag.StringVar(&basepath, "data", "data", "Folder for settings and the download spool")

	profile := ""
	flag.StringVar(&profile, "profile", "", "Write a CPU profile to this file")

	monitor := 0
	flag.IntVar(&monitor, "monitor", 0, "Serve cache statistics on this port")

	flag.Parse()
	opens := flag.Args()

	volume.LoadSettings(basepath)
	if volume.Settings.SpoolPath == "spool" {
		volume.Settings.SpoolPath = basepath + "/spool"
	}
	if monitor != 0 {
		volume.Settings.MonitorPort = monitor
	}
	volume.Init()

	if volume.Settings.MonitorPort != 0 {
		go func() {
			err := volume.ServeMonitor(fmt.Sprintf(":%d", volume.Settings.MonitorPort), &volume.GlobalCache)
			if err != nil {
				fmt.Println("monitor:", err)
			}
		}()
	}

	// install exit handler
	cancelChan := make(chan os.Signal, 1)
	signal.Notify(cancelChan, syscall.SIGTERM, syscall.SIGINT)
	go (func() {
		<-cancelChan
		exitroutine(nil)
	})()

	// init profiling
	if profile != "" {
		f, err := os.Create(profile)
		if err != nil {
			panic(err)
		}
		defer f.Close()
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	shell := &inspector{}
	for _, path := range opens {
		shell.open(path)
	}

	fmt.Print(`
    Type help to list commands

`)
	shell.repl()

	// normal shutdown
	exitroutine(shell)
}

func exitroutine(shell *inspector) {
	fmt.Println("Exit procedure...")
	if shell != nil && shell.current != nil {
		shell.close()
	}
	volume.SaveSettings(flag.Lookup("data").Value.String())
	onexit.ForceExit(0)
}

// inspector is the interactive shell state: one current volume.
type inspector struct {
	current  *Session
	collator *collate.Collator
}

// Session is one opened volume plus its optional file watch.
type Session struct {
	vol       *volume.Volume
	stopWatch func()
}

func (sh *inspector) repl() {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            newprompt,
		HistoryFile:       ".voxcp-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			panic(err)
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}

		// anti-panic func
		if func() (quit bool) {
			defer func() {
				if r := recover(); r != nil {
					fmt.Println("error:", r)
				}
			}()
			return sh.command(args)
		}() {
			break
		}
	}
}

func (sh *inspector) command(args []string) bool {
	switch args[0] {
	case "help":
		fmt.Print(`  open <path>                 load grid metadata from a .vxb file
  seq <start> <dur> <off> <mode>   configure sequence playback (mode: clip|extend|repeat|pingpong)
  frame <scene_frame>         resolve the sequence frame and reload
  grids [sorted]              list grids of the current volume
  load <name|index|all>       read voxel trees on demand
  unload <name|index|all>     drop voxel trees (metadata stays cached)
  info <name|index>           grid details
  copy                        duplicate the volume (shares the cache)
  watch                       reload when the file changes on disk
  stat                        file cache statistics
  close                       release the current volume
  exit
`)
	case "open":
		if len(args) < 2 {
			fmt.Println("usage: open <path>")
			break
		}
		sh.open(args[1])
	case "seq":
		if sh.need() || len(args) < 5 {
			if len(args) < 5 {
				fmt.Println("usage: seq <start> <duration> <offset> <clip|extend|repeat|pingpong>")
			}
			break
		}
		v := sh.current.vol
		v.FrameStart, _ = strconv.Atoi(args[1])
		v.FrameDuration, _ = strconv.Atoi(args[2])
		v.FrameOffset, _ = strconv.Atoi(args[3])
		switch args[4] {
		case "clip":
			v.SequenceMode = volume.SequenceClip
		case "extend":
			v.SequenceMode = volume.SequenceExtend
		case "repeat":
			v.SequenceMode = volume.SequenceRepeat
		case "pingpong":
			v.SequenceMode = volume.SequencePingPong
		default:
			fmt.Println("unknown mode " + args[4])
			return false
		}
		v.IsSequence = true
	case "frame":
		if sh.need() || len(args) < 2 {
			break
		}
		scene, _ := strconv.Atoi(args[1])
		v := sh.current.vol
		v.EvalFrame(scene)
		if v.Frame() == volume.FrameNone {
			fmt.Println("outside sequence range")
			break
		}
		if !v.Load() {
			fmt.Println("error: " + v.ErrorMessage())
		}
	case "grids":
		if sh.need() {
			break
		}
		v := sh.current.vol
		if len(args) > 1 && args[1] == "sorted" {
			names := make([]string, 0, v.NumGrids())
			for i := 0; i < v.NumGrids(); i++ {
				names = append(names, v.Grid(i).Name())
			}
			sh.sortNames(names)
			for _, name := range names {
				fmt.Println("  " + name)
			}
			break
		}
		for i := 0; i < v.NumGrids(); i++ {
			h := v.Grid(i)
			state := "metadata"
			if h.IsLoaded() {
				state = "loaded"
			}
			fmt.Printf("  %2d  %-20s %-8s %d channel(s)  %s\n", i, h.Name(), h.Type(), h.Type().Channels(), state)
		}
	case "load", "unload":
		if sh.need() || len(args) < 2 {
			break
		}
		v := sh.current.vol
		for _, h := range sh.pick(args[1]) {
			if args[0] == "load" {
				if !v.LoadGrid(h) {
					fmt.Println("error: " + h.ErrorMessage())
				}
			} else {
				v.UnloadGrid(h)
			}
		}
	case "info":
		if sh.need() || len(args) < 2 {
			break
		}
		for _, h := range sh.pick(args[1]) {
			fmt.Println("  name:      " + h.Name())
			fmt.Println("  type:      " + h.Type().String())
			fmt.Println("  transform:", h.Transform())
			if h.IsLoaded() {
				tree := h.Grid().Tree()
				fmt.Println("  leaves:   ", tree.LeafCount())
				fmt.Println("  voxels:   ", tree.ActiveVoxels())
				fmt.Println("  memory:    " + units.HumanSize(float64(tree.MemUsage())))
			}
			if msg := h.ErrorMessage(); msg != "" {
				fmt.Println("  error:     " + msg)
			}
		}
	case "copy":
		if sh.need() {
			break
		}
		dup := sh.current.vol.Copy()
		fmt.Printf("copied volume %s (%d grids share the cache); releasing copy again\n", dup.Name, dup.NumGrids())
		dup.Free()
	case "watch":
		if sh.need() {
			break
		}
		if sh.current.stopWatch != nil {
			fmt.Println("already watching")
			break
		}
		stop, err := volume.WatchVolume(sh.current.vol)
		if err != nil {
			fmt.Println("watch:", err)
			break
		}
		sh.current.stopWatch = stop
	case "stat":
		stat := volume.GlobalCache.Stat()
		fmt.Println("  entries:       ", stat.Entries)
		fmt.Println("  metadata users:", stat.MetadataUsers)
		fmt.Println("  tree users:    ", stat.TreeUsers)
		fmt.Println("  loaded trees:  ", stat.LoadedTrees)
		fmt.Println("  resident:       " + units.HumanSize(float64(stat.ResidentBytes)))
	case "close":
		sh.close()
	case "exit", "quit":
		return true
	default:
		fmt.Println("unknown command " + args[0] + ", try help")
	}
	return false
}

func (sh *inspector) open(path string) {
	sh.close()
	v := volume.NewVolume(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	v.Filepath = path
	sh.current = &Session{vol: v}
	if v.Load() {
		fmt.Printf("%d grid(s)\n", v.NumGrids())
	} else {
		fmt.Println("error: " + v.ErrorMessage())
	}
	if volume.Settings.WatchFiles && v.IsLoaded() {
		if stop, err := volume.WatchVolume(v); err == nil {
			sh.current.stopWatch = stop
		}
	}
}

func (sh *inspector) close() {
	if sh.current == nil {
		return
	}
	if sh.current.stopWatch != nil {
		sh.current.stopWatch()
	}
	sh.current.vol.Free()
	sh.current = nil
}

func (sh *inspector) need() bool {
	if sh.current == nil {
		fmt.Println("no volume open, use: open <path>")
		return true
	}
	return false
}

// pick resolves "all", an index or a grid name to handles.
func (sh *inspector) pick(sel string) []*volume.GridHandle {
	v := sh.current.vol
	if sel == "all" {
		handles := make([]*volume.GridHandle, 0, v.NumGrids())
		for i := 0; i < v.NumGrids(); i++ {
			handles = append(handles, v.Grid(i))
		}
		return handles
	}
	if idx, err := strconv.Atoi(sel); err == nil {
		if h := v.Grid(idx); h != nil {
			return []*volume.GridHandle{h}
		}
		fmt.Println("no grid at index " + sel)
		return nil
	}
	if h := v.FindGrid(sel); h != nil {
		return []*volume.GridHandle{h}
	}
	fmt.Println("no grid named '" + sel + "'")
	return nil
}

// sortNames orders grid names with a proper unicode collator instead
// of byte order.
func (sh *inspector) sortNames(names []string) {
	if sh.collator == nil {
		sh.collator = collate.New(language.Und)
	}
	sort.Slice(names, func(i, j int) bool {
		return sh.collator.CompareString(names[i], names[j]) < 0
	})
}
