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
	"strings"

	"github.com/blacktop/govmi"
	"github.com/blacktop/govmi/drivers/file"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var (
	regImage       string
	regSize        int
	regType        string
	regAddr        uint64
	regGranularity string
	regAccess      string
	regReg         uint32
	regVector      uint32
	regVCPU        uint32
)

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().StringVarP(&regImage, "image", "i", "govmi.img", "Path to the memory-dump file")
	registerCmd.Flags().IntVar(&regSize, "size", unix.Getpagesize()*16, "Size to allocate if the image doesn't exist (bytes)")
	registerCmd.Flags().StringVarP(&regType, "type", "t", "mem", "Event type: mem, reg, intr")
	registerCmd.Flags().Uint64Var(&regAddr, "addr", 0, "Physical address (mem events)")
	registerCmd.Flags().StringVar(&regGranularity, "granularity", "page", "page or byte (mem events)")
	registerCmd.Flags().StringVarP(&regAccess, "access", "a", "R", "Access mask: any combination of R, W, X, or XW alone")
	registerCmd.Flags().Uint32Var(&regReg, "reg", 0, "Register id (reg events)")
	registerCmd.Flags().Uint32Var(&regVector, "vector", 0, "Interrupt vector (intr events)")
	registerCmd.Flags().Uint32Var(&regVCPU, "vcpu", 0, "vCPU index")
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register one event against the file driver and print the resulting state",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := file.Open(regImage, regSize)
		if err != nil {
			return fmt.Errorf("open %s: %w", regImage, err)
		}
		defer d.Close()

		sess, err := vmi.Init(d, vmi.Config{EventsEnabled: true, VCPUCount: 64})
		if err != nil {
			return fmt.Errorf("init session: %w", err)
		}
		defer sess.Teardown()

		sub, err := buildSubscription()
		if err != nil {
			return err
		}

		if err := sess.RegisterEvent(sub); err != nil {
			return fmt.Errorf("register event: %w", err)
		}

		fmt.Println(color.GreenString("registered %s event", sub.Type))
		if sub.Mem != nil {
			fmt.Printf("page access: %s\n", d.PageAccess(sub.Mem.PhysicalAddress))
		}
		return nil
	},
}

func buildSubscription() (*vmi.Subscription, error) {
	cb := func(sess *vmi.Session, sub *vmi.Subscription) error { return nil }

	switch strings.ToLower(regType) {
	case "mem":
		access, err := parseMemAccess(regAccess)
		if err != nil {
			return nil, err
		}
		gran := vmi.GranularityPage
		if strings.EqualFold(regGranularity, "byte") {
			gran = vmi.GranularityByte
		}
		return &vmi.Subscription{
			Type:     vmi.EventMemory,
			VCPUID:   regVCPU,
			Callback: cb,
			Mem:      &vmi.MemPayload{PhysicalAddress: regAddr, Granularity: gran, Access: access},
		}, nil
	case "reg":
		access, err := parseRegAccess(regAccess)
		if err != nil {
			return nil, err
		}
		return &vmi.Subscription{
			Type:     vmi.EventRegister,
			VCPUID:   regVCPU,
			Callback: cb,
			Reg:      &vmi.RegPayload{Reg: vmi.RegID(regReg), Access: access, Enabled: true},
		}, nil
	case "intr":
		return &vmi.Subscription{
			Type:     vmi.EventInterrupt,
			VCPUID:   regVCPU,
			Callback: cb,
			Intr:     &vmi.InterruptPayload{Vector: regVector, Enabled: true},
		}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q (want mem, reg, or intr)", regType)
	}
}

func parseMemAccess(s string) (vmi.MemAccess, error) {
	if strings.EqualFold(s, "XW") {
		return vmi.MemXOnWrite, nil
	}
	var access vmi.MemAccess
	for _, c := range strings.ToUpper(s) {
		switch c {
		case 'R':
			access |= vmi.MemRead
		case 'W':
			access |= vmi.MemWrite
		case 'X':
			access |= vmi.MemExecute
		default:
			return 0, fmt.Errorf("invalid access character %q", c)
		}
	}
	if access == 0 {
		return 0, fmt.Errorf("empty access mask")
	}
	return access, nil
}

func parseRegAccess(s string) (vmi.RegAccess, error) {
	var access vmi.RegAccess
	for _, c := range strings.ToUpper(s) {
		switch c {
		case 'R':
			access |= vmi.RegRead
		case 'W':
			access |= vmi.RegWrite
		default:
			return 0, fmt.Errorf("invalid access character %q", c)
		}
	}
	if access == 0 {
		return 0, fmt.Errorf("empty access mask")
	}
	return access, nil
}
