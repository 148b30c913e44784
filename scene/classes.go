package scene

// Scene classification (SCL) codes emitted by the Sen2Cor L2A processor.
const (
	ClassNoData uint8 = iota
	ClassSaturated
	ClassDarkArea
	ClassCloudShadow
	ClassVegetation
	ClassBareSoil
	ClassWater
	ClassUnclassified
	ClassCloudMedium
	ClassCloudHigh
	ClassThinCirrus
	ClassSnow
)

// DefaultKeepClasses lists the SCL codes a water-target detector keeps by
// default: open water plus thin cirrus, which is transparent enough to see
// floating mats through.
var DefaultKeepClasses = []uint8{ClassWater, ClassThinCirrus}

// Digital-number divisors for converting JP2 counts to reflectance.
const (
	// QuantL2A is the standard Sen2Cor boa quantification value.
	QuantL2A float32 = 10000
	// QuantFullScale treats counts as full-range 16-bit. Models trained on
	// rasters rescaled to the uint16 domain expect this divisor.
	QuantFullScale float32 = 1<<16 - 1
)
