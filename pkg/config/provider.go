package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetWell() (*WellData, error)
	GetStorageConfig() (*StorageData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Well        WellData        `json:"well"`
	Fluids      []FluidData     `json:"fluids"`
	Project     ProjectData     `json:"project"`
	Tolerances  TolerancesData  `json:"tolerances"`
	Equalizer   EqualizerData   `json:"equalizer"`
	Trip        TripData        `json:"trip"`
	Circulation CirculationData `json:"circulation"`
	Storage     StorageData     `json:"storage,omitempty"`
	Server      *ServerData     `json:"server,omitempty"`
}

// WellData describes the hole, the drill string and the directional survey.
// String components are listed from the bit upward; the last one runs to
// surface.
type WellData struct {
	Name       string          `json:"name,omitempty"`
	TotalDepth float64         `json:"total_depth"`
	Hole       []HoleData      `json:"hole"`
	String     []ComponentData `json:"string"`
	Survey     []StationData   `json:"survey,omitempty"`
}

type HoleData struct {
	Top      float64 `json:"top"`
	Bottom   float64 `json:"bottom"`
	Diameter float64 `json:"diameter"`
}

type ComponentData struct {
	Name   string  `json:"name,omitempty"`
	Length float64 `json:"length,omitempty"`
	OD     float64 `json:"od"`
	ID     float64 `json:"id"`
}

type StationData struct {
	MD  float64 `json:"md"`
	TVD float64 `json:"tvd"`
}

// FluidData is one entry of the fluid library. Color is "#rrggbb" or
// "#rrggbbaa". PV/YP take precedence over dial readings.
type FluidData struct {
	Name             string  `json:"name"`
	Density          float64 `json:"density"`
	Color            string  `json:"color,omitempty"`
	PlasticViscosity float64 `json:"plastic_viscosity,omitempty"`
	YieldPoint       float64 `json:"yield_point,omitempty"`
	Dial600          float64 `json:"dial_600,omitempty"`
	Dial300          float64 `json:"dial_300,omitempty"`
}

// ProjectData holds the current bit depth and the fluid layers in each
// conduit. Layers reference fluids by name.
type ProjectData struct {
	Name    string      `json:"name,omitempty"`
	BitMD   float64     `json:"bit_md"`
	String  []LayerData `json:"string"`
	Annulus []LayerData `json:"annulus"`
	Pocket  []LayerData `json:"pocket,omitempty"`
}

type LayerData struct {
	Fluid  string  `json:"fluid"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

type TolerancesData struct {
	Length  float64 `json:"length"`
	Volume  float64 `json:"volume"`
	Density float64 `json:"density"`
}

type EqualizerData struct {
	ParcelVolume  float64 `json:"parcel_volume"`
	MaxIterations int     `json:"max_iterations"`
	Crack         float64 `json:"crack"`
	AirDensity    float64 `json:"air_density"`
}

// TripData configures a trip or ream. Speed is m/s, pump rate m³/min.
type TripData struct {
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	RecordInterval   float64 `json:"record_interval"`
	CoarseStep       float64 `json:"coarse_step"`
	FineStep         float64 `json:"fine_step"`
	CoarseMargin     float64 `json:"coarse_margin"`
	TargetESD        float64 `json:"target_esd"`
	BackfillFluid    string  `json:"backfill_fluid"`
	BackfillLimit    float64 `json:"backfill_limit,omitempty"`
	BaseFluid        string  `json:"base_fluid,omitempty"`
	TripSpeed        float64 `json:"trip_speed,omitempty"`
	PumpRate         float64 `json:"pump_rate,omitempty"`
	InitialSABP      float64 `json:"initial_sabp,omitempty"`
	HoldBackPressure bool    `json:"hold_back_pressure,omitempty"`
	EqualizerMode    string  `json:"equalizer_mode,omitempty"`
	ObservedPitGain  float64 `json:"observed_pit_gain,omitempty"`
	ProgressEvery    float64 `json:"progress_every,omitempty"`
}

type PumpOpData struct {
	Fluid  string  `json:"fluid"`
	Volume float64 `json:"volume"`
}

type CirculationData struct {
	Schedule            []PumpOpData `json:"schedule,omitempty"`
	ControlMD           float64      `json:"control_md,omitempty"`
	TargetESD           float64      `json:"target_esd"`
	PumpRate            float64      `json:"pump_rate,omitempty"`
	LimitPumpRate       bool         `json:"limit_pump_rate,omitempty"`
	MinPumpRate         float64      `json:"min_pump_rate,omitempty"`
	BisectionIterations int          `json:"bisection_iterations"`
	MaxPoints           int          `json:"max_points"`
	MinIncrement        float64      `json:"min_increment"`
}

// StorageData holds the configuration for the run archive backends
type StorageData struct {
	SQLite      *SQLiteData      `json:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty"`
}

type SQLiteData struct {
	Path string `json:"path"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
}

type ServerData struct {
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	Port       int    `json:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty"`
}
