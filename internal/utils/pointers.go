package utils

func IntPtr(i int) *int {
	return &i
}
