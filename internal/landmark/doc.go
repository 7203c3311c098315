// Package landmark parses per-image facial landmark tables.
//
// The source is a CSV file with a header row and one row per image:
//
//	image_name, lefteye_x, lefteye_y, righteye_x, righteye_y, nose_x, nose_y,
//	leftmouth_x, leftmouth_y, rightmouth_x, rightmouth_y
//
// Rows are kept in file order and addressed by image ID, where row i holds
// image i+1.
package landmark
