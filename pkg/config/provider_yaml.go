package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from the YAML file, fills in
// defaults and validates the result.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := ParseYAML(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", y.filename, err)
	}

	y.config = config
	return config, nil
}

// ParseYAML converts a YAML document into a defaulted, validated ConfigData.
func ParseYAML(data []byte) (*ConfigData, error) {
	var yamlConfig ConfigYAML
	if err := yaml.UnmarshalStrict(data, &yamlConfig); err != nil {
		return nil, err
	}

	config := yamlConfig.toData()
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// GetWell returns the well configuration
func (y *YAMLProvider) GetWell() (*WellData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Well, nil
}

// GetStorageConfig returns storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Storage, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with the hyphenated keys used in config files
type ConfigYAML struct {
	Well        WellYAML        `yaml:"well"`
	Fluids      []FluidYAML     `yaml:"fluids"`
	Project     ProjectYAML     `yaml:"project"`
	Tolerances  TolerancesYAML  `yaml:"tolerances,omitempty"`
	Equalizer   EqualizerYAML   `yaml:"equalizer,omitempty"`
	Trip        TripYAML        `yaml:"trip,omitempty"`
	Circulation CirculationYAML `yaml:"circulation,omitempty"`
	Storage     StorageYAML     `yaml:"storage,omitempty"`
	Server      *ServerYAML     `yaml:"server,omitempty"`
}

type WellYAML struct {
	Name       string          `yaml:"name,omitempty"`
	TotalDepth float64         `yaml:"total-depth"`
	Hole       []HoleData      `yaml:"hole"`
	String     []ComponentData `yaml:"string"`
	Survey     []StationData   `yaml:"survey,omitempty"`
}

type FluidYAML struct {
	Name             string  `yaml:"name"`
	Density          float64 `yaml:"density"`
	Color            string  `yaml:"color,omitempty"`
	PlasticViscosity float64 `yaml:"plastic-viscosity,omitempty"`
	YieldPoint       float64 `yaml:"yield-point,omitempty"`
	Dial600          float64 `yaml:"dial-600,omitempty"`
	Dial300          float64 `yaml:"dial-300,omitempty"`
}

type ProjectYAML struct {
	Name    string      `yaml:"name,omitempty"`
	BitMD   float64     `yaml:"bit-md"`
	String  []LayerData `yaml:"string"`
	Annulus []LayerData `yaml:"annulus"`
	Pocket  []LayerData `yaml:"pocket,omitempty"`
}

type TolerancesYAML struct {
	Length  float64 `yaml:"length,omitempty"`
	Volume  float64 `yaml:"volume,omitempty"`
	Density float64 `yaml:"density,omitempty"`
}

type EqualizerYAML struct {
	ParcelVolume  float64 `yaml:"parcel-volume,omitempty"`
	MaxIterations int     `yaml:"max-iterations,omitempty"`
	Crack         float64 `yaml:"crack,omitempty"`
	AirDensity    float64 `yaml:"air-density,omitempty"`
}

type TripYAML struct {
	Start            float64 `yaml:"start"`
	End              float64 `yaml:"end"`
	RecordInterval   float64 `yaml:"record-interval,omitempty"`
	CoarseStep       float64 `yaml:"coarse-step,omitempty"`
	FineStep         float64 `yaml:"fine-step,omitempty"`
	CoarseMargin     float64 `yaml:"coarse-margin,omitempty"`
	TargetESD        float64 `yaml:"target-esd"`
	BackfillFluid    string  `yaml:"backfill-fluid"`
	BackfillLimit    float64 `yaml:"backfill-limit,omitempty"`
	BaseFluid        string  `yaml:"base-fluid,omitempty"`
	TripSpeed        float64 `yaml:"trip-speed,omitempty"`
	PumpRate         float64 `yaml:"pump-rate,omitempty"`
	InitialSABP      float64 `yaml:"initial-sabp,omitempty"`
	HoldBackPressure bool    `yaml:"hold-back-pressure,omitempty"`
	EqualizerMode    string  `yaml:"equalizer-mode,omitempty"`
	ObservedPitGain  float64 `yaml:"observed-pit-gain,omitempty"`
	ProgressEvery    float64 `yaml:"progress-every,omitempty"`
}

type CirculationYAML struct {
	Schedule            []PumpOpData `yaml:"schedule,omitempty"`
	ControlMD           float64      `yaml:"control-md,omitempty"`
	TargetESD           float64      `yaml:"target-esd,omitempty"`
	PumpRate            float64      `yaml:"pump-rate,omitempty"`
	LimitPumpRate       bool         `yaml:"limit-pump-rate,omitempty"`
	MinPumpRate         float64      `yaml:"min-pump-rate,omitempty"`
	BisectionIterations int          `yaml:"bisection-iterations,omitempty"`
	MaxPoints           int          `yaml:"max-points,omitempty"`
	MinIncrement        float64      `yaml:"min-increment,omitempty"`
}

type StorageYAML struct {
	SQLite      *SQLiteYAML      `yaml:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBYAML `yaml:"timescaledb,omitempty"`
}

type SQLiteYAML struct {
	Path string `yaml:"path"`
}

type TimescaleDBYAML struct {
	ConnectionString string `yaml:"connection-string"`
}

type ServerYAML struct {
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	ListenAddr string `yaml:"listen-addr,omitempty"`
}

func (c ConfigYAML) toData() *ConfigData {
	config := &ConfigData{
		Well:        WellData(c.Well),
		Fluids:      make([]FluidData, len(c.Fluids)),
		Project:     ProjectData(c.Project),
		Tolerances:  TolerancesData(c.Tolerances),
		Equalizer:   EqualizerData(c.Equalizer),
		Trip:        TripData(c.Trip),
		Circulation: CirculationData(c.Circulation),
	}

	for i, f := range c.Fluids {
		config.Fluids[i] = FluidData(f)
	}

	if c.Storage.SQLite != nil {
		config.Storage.SQLite = &SQLiteData{Path: c.Storage.SQLite.Path}
	}
	if c.Storage.TimescaleDB != nil {
		config.Storage.TimescaleDB = &TimescaleDBData{
			ConnectionString: c.Storage.TimescaleDB.ConnectionString,
		}
	}
	if c.Server != nil {
		config.Server = &ServerData{
			Cert:       c.Server.Cert,
			Key:        c.Server.Key,
			Port:       c.Server.Port,
			ListenAddr: c.Server.ListenAddr,
		}
	}
	return config
}
