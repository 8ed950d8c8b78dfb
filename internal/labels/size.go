package labels

// Size is the size category of a pull request.
type Size string

const (
	SizeXS  Size = "XS"
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

var sizeThresholds = []struct {
	below int
	size  Size
}{
	{20, SizeXS},
	{50, SizeS},
	{100, SizeM},
	{300, SizeL},
	{500, SizeXL},
}

// SizeFor returns the size category for the number of changed lines.
func SizeFor(changedLines int) Size {
	for _, th := range sizeThresholds {
		if changedLines < th.below {
			return th.size
		}
	}

	return SizeXXL
}

// SizeLabel returns the name of the size label for the number of changed
// lines.
func SizeLabel(changedLines int) string {
	return SizePrefix + string(SizeFor(changedLines))
}

func parseSize(s string) (Size, bool) {
	switch Size(s) {
	case SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL:
		return Size(s), true
	default:
		return "", false
	}
}
