package main

import (
	"fmt"

	"github.com/cachesim/cachesim/internal/policycfg"
	"github.com/cachesim/cachesim/internal/slabclass"
	"github.com/cachesim/cachesim/policy"
)

// newPolicy constructs the named engine from cfg, mirroring the original
// simulator's name-dispatched policy factory.
func newPolicy(name string, cfg policycfg.PolicyConfig) (policy.Policy, error) {
	switch name {
	case "lru":
		return policy.NewLRU(cfg.DRAMSize), nil
	case "clock":
		// Plain CLOCK cold-starts a freshly-admitted item's counter at 0 until
		// its first eviction (maxValue after that); CLOCK_START_VAL is only
		// meaningful for LRU-K-Clock's hotter
		// cold-start (see flash_cache_lruk_clock below).
		return policy.NewClock(cfg.DRAMSize, cfg.ClockMaxValue, 0), nil
	case "lruk":
		return policy.NewLRUK(cfg.FcKLru, cfg.DRAMSize/uint64(cfg.FcKLru)), nil
	case "flash_cache":
		return policy.NewFlashCache(cfg.DRAMSize, cfg.FlashSize, float64(cfg.FlashRateBytesPerSec), cfg.InitialCredit, float64(cfg.K)), nil
	case "flash_cache_lruk":
		return policy.NewFlashCacheLRUK(cfg.FcKLru, cfg.DRAMSize/uint64(cfg.FcKLru), cfg.DRAMSize, cfg.FlashSize, float64(cfg.FlashRateBytesPerSec), false), nil
	case "flash_cache_lruk_credit_gated":
		return policy.NewFlashCacheLRUK(cfg.FcKLru, cfg.DRAMSize/uint64(cfg.FcKLru), cfg.DRAMSize, cfg.FlashSize, float64(cfg.FlashRateBytesPerSec), true), nil
	case "flash_cache_lruk_clock":
		return policy.NewFlashCacheLRUKClock(cfg.FcKLru, cfg.DRAMSize/uint64(cfg.FcKLru), cfg.FlashSize, float64(cfg.FlashRateBytesPerSec),
			cfg.MinQueueToMoveToFlash, cfg.ClockMaxValue, cfg.ClockJump, cfg.ClockStartVal), nil
	case "ramshield":
		return policy.NewRamShield(cfg.DRAMSize, cfg.FlashSize, cfg.BlockSize, cfg.FlashOverProvisionPct), nil
	case "ramshield_sel":
		return policy.NewRamShieldSel(cfg.DRAMSize, cfg.FlashSize, cfg.BlockSize, cfg.FlashOverProvisionPct), nil
	case "ramshield_fifo":
		return policy.NewRamShieldFIFO(cfg.DRAMSize, cfg.FlashSize, cfg.BlockSize, cfg.FlashOverProvisionPct), nil
	case "ripq":
		return policy.NewRIPQ(cfg.BlockSize, int(cfg.NumSections), cfg.FlashSize), nil
	case "ripq_shield":
		return policy.NewRIPQShield(cfg.BlockSize, int(cfg.NumSections), cfg.FlashSize, int(cfg.NumDSections), cfg.DRAMSize/uint64(cfg.NumDSections)), nil
	case "victim_cache":
		return policy.NewVictimCache(cfg.DRAMSize, cfg.FlashSize), nil
	case "slab":
		return policy.NewSlab(cfg.MemcachierClasses, cfg.SlabGrowthFactor, cfg.DRAMSize, uint64(slabclass.MaxItemSize)), nil
	case "slab_multi":
		return policy.NewSlabMulti(cfg.MemcachierClasses, cfg.SlabGrowthFactor, cfg.DRAMSize, uint64(slabclass.MaxItemSize)), nil
	case "partitioned_lru":
		return policy.NewPartitionedLRU(uint64(cfg.NumPartitions), cfg.DRAMSize, cfg.MaxOverallRequestSize), nil
	case "shadow_lru":
		return policy.NewShadowLRU(), nil
	case "shadow_slab":
		table := slabclass.Memcached(cfg.SlabGrowthFactor)
		if cfg.MemcachierClasses {
			table = slabclass.Memcachier()
		}
		return policy.NewShadowSLAB(table), nil
	case "part_slab":
		return policy.NewPartSlab(int(cfg.NumPartitions)), nil
	case "segment_util":
		return policy.NewSegmentUtil(cfg.SegmentSize, cfg.PageSize, int(cfg.NumHashFunctions)), nil
	case "lsm":
		return policy.NewLSM(cfg.GlobalMem, cfg.LsmSegmentSize, int(cfg.CleaningWidth), cleaningPolicyFromName(cfg.CleaningPolicy)), nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

func cleaningPolicyFromName(name string) policy.CleaningPolicy {
	switch name {
	case "random":
		return policy.CleanRandom
	case "round_robin":
		return policy.CleanRoundRobin
	case "rumble":
		return policy.CleanRumble
	default:
		return policy.CleanOldestItem
	}
}
