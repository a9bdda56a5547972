// Copyright (C) 2024 kvwire contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// kvwire-cli is a minimal interactive client over cluster.Client: it reads
// GET/SET/DEL/EXISTS/PING lines from stdin and prints each reply.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/kvwire/kvwire/cluster"
	"github.com/kvwire/kvwire/cluster/clusterurl"
	"github.com/kvwire/kvwire/cluster/config"
	"github.com/kvwire/kvwire/frame"
)

var (
	seeds   string
	cfgPath string
	timeout time.Duration
	verbose bool
)

func init() {
	flag.StringVar(&seeds, "seeds", "", "comma-separated host:port cluster seed list")
	flag.StringVar(&cfgPath, "config", "", "optional YAML options file")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "per-command timeout")
	flag.BoolVar(&verbose, "v", false, "log connection diagnostics")
}

func main() {
	flag.Parse()

	opt := config.Default()
	if cfgPath != "" {
		var err error
		opt, err = config.LoadFile(cfgPath)
		if err != nil {
			log.Fatalf("kvwire-cli: %s", err)
		}
	}
	seedList := seeds
	if seedList == "" && len(opt.Seeds) > 0 {
		seedList = strings.Join(opt.Seeds, ",")
	}
	if seedList == "" {
		fmt.Fprintln(os.Stderr, "kvwire-cli: no seeds; pass -seeds or a -config file with a seeds list")
		flag.Usage()
		os.Exit(1)
	}
	parsed, err := clusterurl.ParseSeeds(seedList, false)
	if err != nil {
		log.Fatalf("kvwire-cli: %s", err)
	}

	var logger *log.Logger
	if verbose {
		logger = log.New(os.Stderr, "kvwire-cli: ", log.LstdFlags)
	}
	client := cluster.NewClient(parsed, opt, logger)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	err = client.Connect(ctx)
	cancel()
	if err != nil {
		log.Fatalf("kvwire-cli: connect: %s", err)
	}
	defer client.Close()

	sc := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
				break
			}
			runLine(client, line)
		}
		fmt.Print("> ")
	}
	if err := sc.Err(); err != nil {
		log.Fatalf("kvwire-cli: stdin: %s", err)
	}
}

func runLine(client *cluster.Client, line string) {
	fields := strings.Fields(line)
	cmd := strings.ToUpper(fields[0])
	args := fields[1:]

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var reply frame.Frame
	var err error
	switch cmd {
	case "GET":
		if len(args) != 1 {
			err = fmt.Errorf("usage: GET key")
			break
		}
		reply, err = client.Get(ctx, args[0])
	case "SET":
		if len(args) != 2 {
			err = fmt.Errorf("usage: SET key value")
			break
		}
		reply, err = client.Set(ctx, args[0], []byte(args[1]))
	case "DEL":
		if len(args) == 0 {
			err = fmt.Errorf("usage: DEL key [key...]")
			break
		}
		reply, err = client.Del(ctx, args...)
	case "EXISTS":
		if len(args) == 0 {
			err = fmt.Errorf("usage: EXISTS key [key...]")
			break
		}
		reply, err = client.Exists(ctx, args...)
	case "PING":
		ping := frame.NewArray([]frame.Frame{frame.NewBulk([]byte("PING"))})
		reply, err = client.Execute(ctx, ping, 0, true)
	case "TOPOLOGY":
		printTopology(client)
		return
	default:
		err = fmt.Errorf("unknown command %s (try GET, SET, DEL, EXISTS, PING, TOPOLOGY)", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "(error) %s\n", err)
		return
	}
	printReply(reply, "")
}

func printTopology(client *cluster.Client) {
	t := client.Current()
	if t == nil {
		fmt.Println("(no topology)")
		return
	}
	fmt.Printf("generation %d, %d nodes, fully covered: %v\n",
		t.Generation(), t.NodeCount(), t.IsFullyCovered())
	for _, r := range t.Ranges() {
		fmt.Printf("  %5d-%5d  %s", r.Low, r.High, r.Master)
		if len(r.Replicas) > 0 {
			fmt.Printf("  replicas %v", r.Replicas)
		}
		fmt.Println()
	}
}

func printReply(f frame.Frame, indent string) {
	switch f.Type() {
	case frame.Simple:
		s, _ := f.Text()
		fmt.Printf("%s%s\n", indent, s)
	case frame.Error:
		s, _ := f.Text()
		fmt.Printf("%s(error) %s\n", indent, s)
	case frame.Integer:
		n, _ := f.Int()
		fmt.Printf("%s(integer) %d\n", indent, n)
	case frame.Bulk:
		b, _ := f.Bytes()
		fmt.Printf("%s%q\n", indent, b)
	case frame.Null:
		fmt.Printf("%s(nil)\n", indent)
	case frame.Array:
		elems, _ := f.Elems()
		for i, e := range elems {
			fmt.Printf("%s%d) ", indent, i+1)
			printReply(e, "")
		}
		if len(elems) == 0 {
			fmt.Printf("%s(empty array)\n", indent)
		}
	}
}
