/*
@Author: Lzww
@LastEditTime: 2025-10-18 11:32:50
@Description: Simulated devices and kernels for driving wave limiters
@Language: Go 1.23.4
*/

// Package simdev simulates GPU dispatch queues so wave limiters can be
// exercised without hardware: a Profile maps waves per SIMD to an
// execution time and a Queue runs the dispatch/complete loop of one device.
package simdev

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sys/cpu"
)

// Device is a simulated virtual device
type Device struct {
	id        uint64
	Name      string
	SIMDPerSH uint // SIMDs per shader array
	ShaderArr uint // shader arrays
	CiPlus    bool // hardware generation supports wave limiting
}

// NewDevice creates a device with a caller chosen identity
func NewDevice(id uint64, name string, simdPerSH uint, ciPlus bool) *Device {
	return &Device{id: id, Name: name, SIMDPerSH: simdPerSH, ShaderArr: 1, CiPlus: ciPlus}
}

// ID returns the device identity
func (d *Device) ID() uint64 {
	return d.id
}

func (d *Device) String() string {
	return fmt.Sprintf("%s#%d", d.Name, d.id)
}

// HostDevice models the host CPU as a device: every physical core is a
// shader array and every hardware thread of a core a SIMD. Wide vector
// units stand in for the hardware generation check.
func HostDevice() *Device {
	name := cpuid.CPU.BrandName
	if name == "" {
		name = runtime.GOARCH
	}

	threads := cpuid.CPU.ThreadsPerCore
	if threads < 1 {
		threads = 1
	}
	cores := cpuid.CPU.PhysicalCores
	if cores < 1 {
		cores = runtime.NumCPU() / threads
	}
	if cores < 1 {
		cores = 1
	}

	return &Device{
		Name:      name,
		SIMDPerSH: uint(threads),
		ShaderArr: uint(cores),
		CiPlus:    hasWideVectors(),
	}
}

func hasWideVectors() bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return cpu.X86.HasAVX2
	case "arm64":
		return cpu.ARM64.HasASIMD
	default:
		return false
	}
}

// HostInfo describes the host CPU for display
type HostInfo struct {
	Brand          string
	Vendor         string
	Family, Model  int
	PhysicalCores  int
	ThreadsPerCore int
	LogicalCores   int
	WideVectors    bool
}

// Host returns the host CPU description
func Host() HostInfo {
	return HostInfo{
		Brand:          cpuid.CPU.BrandName,
		Vendor:         cpuid.CPU.VendorString,
		Family:         cpuid.CPU.Family,
		Model:          cpuid.CPU.Model,
		PhysicalCores:  cpuid.CPU.PhysicalCores,
		ThreadsPerCore: cpuid.CPU.ThreadsPerCore,
		LogicalCores:   cpuid.CPU.LogicalCores,
		WideVectors:    hasWideVectors(),
	}
}

// Kernel is a simulated kernel
type Kernel struct {
	KernelName string
	Hint       uint // waves per SIMD requested by the kernel metadata, 0 for none
}

// Name returns the kernel name
func (k *Kernel) Name() string {
	return k.KernelName
}

// WavesPerSIMDHint returns the kernel metadata hint
func (k *Kernel) WavesPerSIMDHint() uint {
	return k.Hint
}
