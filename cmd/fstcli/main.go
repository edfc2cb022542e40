package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sagernet/sing-fst/fst"
)

var (
	flagRatioFlag    uint32
	flagRatio        *uint32 // nil unless --ratio was explicitly passed, so an explicit 0 isn't confused with "unset"
	flagIncludeDense bool
)

// buildConfig returns the Config a build/stats run should use: the library
// default, with SparseDenseRatio overridden only when the caller explicitly
// passed --ratio (distinguishing "use the built-in default" from "override
// with 0").
func buildConfig() fst.Config {
	config := fst.DefaultConfig()
	config.IncludeDense = flagIncludeDense
	if flagRatio != nil {
		config.SparseDenseRatio = *flagRatio
	}
	return config
}

func main() {
	command := &cobra.Command{
		Use:   "fstcli",
		Short: "build and query Fast Succinct Trie indexes",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cmd.Flags().Changed("ratio") {
				flagRatio = lo.ToPtr(flagRatioFlag)
			}
		},
	}
	command.PersistentFlags().Uint32Var(&flagRatioFlag, "ratio", 16, "sparse/dense size ratio override (unset keeps the library default)")
	command.PersistentFlags().BoolVar(&flagIncludeDense, "dense", true, "allow a dense upper section")

	command.AddCommand(buildCommand())
	command.AddCommand(lookupCommand())
	command.AddCommand(rangeCommand())
	command.AddCommand(statsCommand())

	if err := command.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func buildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "build <keys-file> <out-file>",
		Short: "build an FST from a newline-delimited, sorted key file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, values, err := readKeyFile(args[0])
			if err != nil {
				return err
			}
			index, err := fst.New(keys, values, buildConfig())
			if err != nil {
				return err
			}
			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer out.Close()
			if err = index.Serialize(out); err != nil {
				return err
			}
			logrus.Infof("built %s: %d keys, %d bytes resident, %d bytes on disk", args[1], len(keys), index.GetMemoryUsage(), index.SerializedSize())
			return nil
		},
	}
}

func lookupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <fst-file> <key>",
		Short: "look up a single key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, _, err := loadIndex(args[0])
			if err != nil {
				return err
			}
			value, ok := index.LookupKey(args[1])
			if !ok {
				fmt.Println("not found")
				return nil
			}
			fmt.Println(value)
			return nil
		},
	}
}

var (
	flagRangeLoInclusive bool
	flagRangeHiInclusive bool
	flagRangeLimit       int
)

func rangeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "range <fst-file> <lo> <hi>",
		Short: "enumerate keys in [lo, hi) (or closed/open per --lo-inclusive/--hi-inclusive)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, _, err := loadIndex(args[0])
			if err != nil {
				return err
			}
			begin, end := index.LookupRange([]byte(args[1]), flagRangeLoInclusive, []byte(args[2]), flagRangeHiInclusive)
			count := 0
			for begin.Valid() && (!end.Valid() || begin.Compare(end.Key()) < 0) {
				if flagRangeLimit > 0 && count >= flagRangeLimit {
					fmt.Println("...")
					break
				}
				fmt.Printf("%s\t%d\n", begin.Key(), begin.Value())
				count++
				begin.Next()
			}
			if count == 0 {
				fmt.Println("no keys in range")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagRangeLoInclusive, "lo-inclusive", true, "include lo itself if present")
	cmd.Flags().BoolVar(&flagRangeHiInclusive, "hi-inclusive", false, "include hi itself if present")
	cmd.Flags().IntVar(&flagRangeLimit, "limit", 100, "stop after this many keys (0 = unlimited)")
	return cmd
}

func statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <fst-file>",
		Short: "print the index's memory and serialized size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, raw, err := loadIndex(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("on-disk: %d bytes\nresident: %d bytes\nkeys sampled: %d\n", len(raw), index.GetMemoryUsage(), len(lo.Subset(index.Keys(), 0, 5)))
			return nil
		},
	}
}

func loadIndex(path string) (*fst.FST, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	index, err := fst.Deserialize(raw)
	if err != nil {
		return nil, nil, err
	}
	return index, raw, nil
}

// readKeyFile parses "key\tvalue" or bare "key" (value defaults to the
// line's 0-based index) lines from path. Lines must already be sorted.
func readKeyFile(path string) ([]string, []uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var keys []string
	var values []uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		key, valueStr, hasValue := strings.Cut(line, "\t")
		var value uint64
		if hasValue {
			value, err = strconv.ParseUint(valueStr, 10, 64)
			if err != nil {
				return nil, nil, err
			}
		} else {
			value = uint64(len(keys))
		}
		keys = append(keys, key)
		values = append(values, value)
	}
	if err = scanner.Err(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}
