package main

import "portal.health/patient-portal/internal/store"

// seedCatalogue is loaded by -seed-products into an empty products table.
var seedCatalogue = []store.Product{
	{Name: "Ashwagandha Root", Description: "Dried root, traditionally used for stress support.", Price: 1250, Category: store.CategoryHerbs, ImageURL: "/images/ashwagandha.jpg", Stock: 40},
	{Name: "Chamomile Flowers", Description: "Whole flowers for a calming evening tea.", Price: 650, Category: store.CategoryHerbs, ImageURL: "/images/chamomile.jpg", Stock: 60},
	{Name: "Peppermint Leaf", Description: "Cut leaf for digestion-friendly infusions.", Price: 575, Category: store.CategoryHerbs, ImageURL: "/images/peppermint.jpg", Stock: 55},
	{Name: "Turmeric Powder", Description: "Ground root, organic.", Price: 899, Category: store.CategoryHerbs, ImageURL: "/images/turmeric.jpg", Stock: 35},
	{Name: "Valerian Root", Description: "Dried root for sleep blends.", Price: 1099, Category: store.CategoryHerbs, ImageURL: "/images/valerian.jpg", Stock: 20},
	{Name: "Vitamin D3 2000 IU", Description: "90 softgels.", Price: 1499, Category: store.CategorySupplements, ImageURL: "/images/vitamin-d3.jpg", Stock: 80},
	{Name: "Magnesium Glycinate", Description: "120 capsules, gentle on the stomach.", Price: 2199, Category: store.CategorySupplements, ImageURL: "/images/magnesium.jpg", Stock: 45},
	{Name: "Omega-3 Fish Oil", Description: "Triple strength, 60 softgels.", Price: 2599, Category: store.CategorySupplements, ImageURL: "/images/omega3.jpg", Stock: 30},
	{Name: "Probiotic Complex", Description: "10 strains, 30 capsules.", Price: 2899, Category: store.CategorySupplements, ImageURL: "/images/probiotic.jpg", Stock: 25},
	{Name: "Vitamin B12", Description: "Methylcobalamin lozenges.", Price: 1199, Category: store.CategorySupplements, ImageURL: "/images/b12.jpg", Stock: 50},
}
