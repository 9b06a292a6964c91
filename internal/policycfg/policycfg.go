// Package policycfg holds the tunable constants every policy engine used to
// read from file-scope C++ globals (DRAM_SIZE, FLASH_RATE, CLOCK_MAX_VALUE,
// ...). They're collected here into one PolicyConfig value passed explicitly
// into each constructor instead — no policy reads a package-level global,
// per the "Global tunables" design note.
package policycfg

import (
	"io/ioutil"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v2"
)

// PolicyConfig is the full tunables table. Not every field applies to every
// policy; each engine's constructor reads only the fields its family needs
// and documents defaults matching the original simulator's compiled-in
// constants.
type PolicyConfig struct {
	// Capacity, bytes.
	DRAMSize  uint64 `yaml:"dram_size" json:"dram_size"`
	FlashSize uint64 `yaml:"flash_size" json:"flash_size"`

	// CLOCK.
	ClockMaxValue  uint32 `yaml:"clock_max_value" json:"clock_max_value"`
	ClockJump      uint32 `yaml:"clock_jump" json:"clock_jump"`
	ClockStartVal  uint32 `yaml:"clock_start_val" json:"clock_start_val"`

	// FlashCache flashiness decay time constant.
	K uint32 `yaml:"k" json:"k"`

	// FlashCache family.
	FlashRateBytesPerSec uint64  `yaml:"flash_rate" json:"flash_rate"`
	InitialCredit        float64 `yaml:"initial_credit" json:"initial_credit"`
	LFc                  uint32  `yaml:"l_fc" json:"l_fc"`
	PFc                  float64 `yaml:"p_fc" json:"p_fc"`
	FcKLru               uint32  `yaml:"fc_k_lru" json:"fc_k_lru"`

	// RamShield.
	BlockSize              uint64 `yaml:"block_size" json:"block_size"`
	MinQueueToMoveToFlash  uint32 `yaml:"min_queue_to_move_to_flash" json:"min_queue_to_move_to_flash"`
	FlashOverProvisionPct  float64 `yaml:"flash_threshold" json:"flash_threshold"`

	// RIPQ / RIPQ-Shield.
	NumSections  uint32 `yaml:"num_sections" json:"num_sections"`
	NumDSections uint32 `yaml:"num_dsections" json:"num_dsections"`

	// Slab family.
	SlabGrowthFactor  float64 `yaml:"slab_growth_factor" json:"slab_growth_factor"`
	MemcachierClasses bool    `yaml:"memcachier_classes" json:"memcachier_classes"`
	SlabCount         uint32  `yaml:"slab_count" json:"slab_count"`

	// PartitionedLRU / SlabMulti.
	NumPartitions        uint32 `yaml:"num_partitions" json:"num_partitions"`
	MaxOverallRequestSize uint64 `yaml:"max_overall_request_size" json:"max_overall_request_size"`

	// SegmentUtil.
	SegmentSize       uint64 `yaml:"segment_size" json:"segment_size"`
	PageSize          uint64 `yaml:"page_size" json:"page_size"`
	NumHashFunctions  uint32 `yaml:"num_hash_functions" json:"num_hash_functions"`
	BitsForPage       uint32 `yaml:"bits_for_page" json:"bits_for_page"`

	// LSM.
	GlobalMem       uint64 `yaml:"global_mem" json:"global_mem"`
	LsmSegmentSize  uint64 `yaml:"lsm_segment_size" json:"lsm_segment_size"`
	CleaningWidth   uint32 `yaml:"cleaning_width" json:"cleaning_width"`
	CleaningPolicy  string `yaml:"cleaning_policy" json:"cleaning_policy"`
}

// Default returns the tunables table seeded with the original simulator's
// compiled-in constants, so a policy can be constructed with
// policycfg.Default() and get the reference behavior out of the box.
func Default() PolicyConfig {
	return PolicyConfig{
		DRAMSize:  51209600,
		FlashSize: 51209600,

		ClockMaxValue: 15,
		ClockJump:     2,
		ClockStartVal: 3,

		K: 1,

		FlashRateBytesPerSec: 1024 * 1024,
		InitialCredit:        1,
		LFc:                  1,
		PFc:                  0.3,
		FcKLru:               8,

		BlockSize:             1024 * 1024,
		MinQueueToMoveToFlash: 6,
		FlashOverProvisionPct: 1.0,

		NumSections:  1,
		NumDSections: 1,

		SlabGrowthFactor: 1.25,

		NumPartitions:         1,
		MaxOverallRequestSize: 1024 * 1024,

		SegmentSize:      0,
		PageSize:         4096,
		NumHashFunctions: 4,
		BitsForPage:      20,

		GlobalMem:      51209600,
		LsmSegmentSize: 1024 * 1024,
		CleaningWidth:  4,
		CleaningPolicy: "oldest_item",
	}
}

// LoadYAML reads a single PolicyConfig from a YAML scenario file, for batch
// comparison runs across multiple policies; fields the file omits keep
// their Default() values.
func LoadYAML(path string) (PolicyConfig, error) {
	var cfg PolicyConfig
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Default()
	err = yaml.Unmarshal(buf, &cfg)
	return cfg, err
}

// LoadJSON reads a single PolicyConfig override blob for one-off CLI runs,
// using json-iterator for parity with the teacher's own fast-path JSON use.
func LoadJSON(path string) (PolicyConfig, error) {
	var cfg PolicyConfig
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Default()
	err = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(buf, &cfg)
	return cfg, err
}
