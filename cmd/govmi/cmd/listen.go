/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/blacktop/govmi"
	"github.com/blacktop/govmi/drivers/file"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var (
	listenImage     string
	listenSize      int
	listenTimeoutMs int
)

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().StringVarP(&listenImage, "image", "i", "govmi.img", "Path to the memory-dump file")
	listenCmd.Flags().IntVar(&listenSize, "size", unix.Getpagesize()*16, "Size to allocate if the image doesn't exist (bytes)")
	listenCmd.Flags().IntVar(&listenTimeoutMs, "timeout", 1000, "EventsListen poll timeout, in milliseconds")
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Drive the driver's event-listen loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := file.Open(listenImage, listenSize)
		if err != nil {
			return fmt.Errorf("open %s: %w", listenImage, err)
		}
		defer d.Close()

		sess, err := vmi.Init(d, vmi.Config{EventsEnabled: true, VCPUCount: 64})
		if err != nil {
			return fmt.Errorf("init session: %w", err)
		}
		defer sess.Teardown()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt)

		fmt.Println(color.CyanString("listening (ctrl-c to stop)..."))
		for {
			select {
			case <-stop:
				fmt.Println(color.CyanString("stopping"))
				return nil
			default:
				if err := sess.EventsListen(listenTimeoutMs); err != nil {
					return fmt.Errorf("events listen: %w", err)
				}
			}
		}
	},
}
